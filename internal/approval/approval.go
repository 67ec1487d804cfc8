// Package approval collects quorum votes for operations that require
// human sign-off. The kernel computes the required quorum size and
// opens a ballot here; an external flow gathers signed votes until the
// ballot resolves or its deadline passes.
package approval

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Decision is the resolved state of a ballot.
type Decision string

const (
	DecisionPending  Decision = "pending"
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
	DecisionExpired  Decision = "expired"
)

var (
	ErrBallotNotFound = errors.New("ballot not found")
	ErrBallotClosed   = errors.New("ballot already closed")
	ErrDuplicateVote  = errors.New("approver already voted")
	ErrBadSignature   = errors.New("vote signature mismatch")
	ErrQuorumRequired = errors.New("quorum size must be positive")
)

// Ballot is one open approval request.
type Ballot struct {
	ID            string    `json:"id"`
	OperationID   string    `json:"operation_id"`
	OperationHash string    `json:"operation_hash"`
	Quorum        int       `json:"quorum"`
	Deadline      time.Time `json:"deadline"`
	OpenedAt      time.Time `json:"opened_at"`
}

// Vote is one approver's signed verdict.
type Vote struct {
	ApproverID string    `json:"approver_id"`
	Approve    bool      `json:"approve"`
	CastAt     time.Time `json:"cast_at"`
}

// Status is a snapshot of a ballot's progress.
type Status struct {
	Ballot     Ballot   `json:"ballot"`
	Decision   Decision `json:"decision"`
	Approvals  int      `json:"approvals"`
	Rejections int      `json:"rejections"`
	Votes      []Vote   `json:"votes"`
}

type ballotState struct {
	ballot Ballot
	votes  map[string]Vote
}

// Service holds open ballots in memory under one mutex. Votes are
// authenticated with an HMAC shared secret so a ballot cannot be
// stuffed by an approver who does not hold the key.
type Service struct {
	mu      sync.Mutex
	key     []byte
	ttl     time.Duration
	ballots map[string]*ballotState
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithTTL sets how long a ballot stays open. Default one hour.
func WithTTL(d time.Duration) Option {
	return func(s *Service) { s.ttl = d }
}

// WithLogger sets the service's logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a ballot collector keyed on secret.
func NewService(secret []byte, opts ...Option) *Service {
	s := &Service{
		key:     append([]byte(nil), secret...),
		ttl:     time.Hour,
		ballots: make(map[string]*ballotState),
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open creates a ballot for an operation and returns it. The ballot id
// is the durable reference the kernel hands back to callers on a
// pending-approval verdict.
func (s *Service) Open(operationID, operationHash string, quorum int) (Ballot, error) {
	if quorum <= 0 {
		return Ballot{}, ErrQuorumRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	b := Ballot{
		ID:            "apr-" + uuid.NewString(),
		OperationID:   operationID,
		OperationHash: operationHash,
		Quorum:        quorum,
		Deadline:      now.Add(s.ttl),
		OpenedAt:      now,
	}
	s.ballots[b.ID] = &ballotState{ballot: b, votes: make(map[string]Vote)}

	s.logger.Info("approval ballot opened",
		"ballot", b.ID, "operation", operationID, "quorum", quorum)
	return b, nil
}

// SignVote computes the signature an approver must present: the HMAC
// of ballot id, approver id, and verdict under the shared secret.
// Exposed so an approval front end can mint signatures with the same
// key material.
func (s *Service) SignVote(ballotID, approverID string, approve bool) string {
	return signVote(s.key, ballotID, approverID, approve)
}

// Vote records one approver's verdict. The signature must match
// SignVote's derivation, each approver votes at most once, and votes
// after the deadline fail with ErrBallotClosed.
func (s *Service) Vote(ballotID, approverID string, approve bool, signature string) (Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.ballots[ballotID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrBallotNotFound, ballotID)
	}

	now := s.now().UTC()
	if d := s.decisionLocked(st, now); d != DecisionPending {
		return d, fmt.Errorf("%w: %s is %s", ErrBallotClosed, ballotID, d)
	}
	if _, voted := st.votes[approverID]; voted {
		return DecisionPending, fmt.Errorf("%w: %s", ErrDuplicateVote, approverID)
	}

	want := signVote(s.key, ballotID, approverID, approve)
	if !hmac.Equal([]byte(want), []byte(signature)) {
		return DecisionPending, ErrBadSignature
	}

	st.votes[approverID] = Vote{ApproverID: approverID, Approve: approve, CastAt: now}
	d := s.decisionLocked(st, now)
	s.logger.Info("approval vote recorded",
		"ballot", ballotID, "approver", approverID, "approve", approve, "decision", d)
	return d, nil
}

// Status reports a ballot's progress. Pure read.
func (s *Service) Status(ballotID string) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.ballots[ballotID]
	if !ok {
		return Status{}, fmt.Errorf("%w: %s", ErrBallotNotFound, ballotID)
	}

	out := Status{Ballot: st.ballot, Decision: s.decisionLocked(st, s.now().UTC())}
	for _, v := range st.votes {
		out.Votes = append(out.Votes, v)
		if v.Approve {
			out.Approvals++
		} else {
			out.Rejections++
		}
	}
	return out, nil
}

// decisionLocked resolves the ballot state at time now. The participant
// pool is the quorum set itself, so approval needs every participant
// and a single rejection makes approval unreachable; otherwise the
// deadline decides.
func (s *Service) decisionLocked(st *ballotState, now time.Time) Decision {
	approvals, rejections := 0, 0
	for _, v := range st.votes {
		if v.Approve {
			approvals++
		} else {
			rejections++
		}
	}
	if approvals >= st.ballot.Quorum {
		return DecisionApproved
	}
	if rejections > 0 {
		return DecisionRejected
	}
	if now.After(st.ballot.Deadline) {
		return DecisionExpired
	}
	return DecisionPending
}

func signVote(key []byte, ballotID, approverID string, approve bool) string {
	verdict := "reject"
	if approve {
		verdict = "approve"
	}
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(ballotID + ":" + approverID + ":" + verdict))
	return hex.EncodeToString(mac.Sum(nil))
}
