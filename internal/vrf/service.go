// Package vrf is an in-process verifiable randomness oracle. Consumers fund
// a balance, request randomness for a fee and receive the value later from
// the fulfiller worker through their registered callback.
package vrf

import (
	"context"
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"

	apperrors "github.com/SAFERMOON/SAFERWINNING/internal/errors"
	"github.com/SAFERMOON/SAFERWINNING/internal/logging"
	"github.com/SAFERMOON/SAFERWINNING/internal/metrics"
)

const defaultQueueSize = 100

// Errors
var (
	ErrInsufficientFunds = apperrors.InsufficientFunds("insufficient oracle funding")
	ErrUnknownConsumer   = apperrors.Validation("consumer not registered")
	ErrQueueFull         = apperrors.ServiceUnavailable("randomness queue full")
	ErrRequestNotFound   = apperrors.NotFound("randomness request", "")
)

// Status is a request's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusFulfilled Status = "fulfilled"
	StatusFailed    Status = "failed"
)

// Fulfiller receives randomness for a request.
type Fulfiller interface {
	FulfillRandomness(ctx context.Context, requestID string, value *uint256.Int) error
}

// Request is one randomness request.
type Request struct {
	ID            string
	Consumer      string
	Seed          string
	Fee           int64
	ReservationID string
	Status        Status
	Output        string
	Proof         string
	Error         string
	CreatedAt     time.Time
	FulfilledAt   time.Time
}

// Config configures the oracle.
type Config struct {
	// SigningSecret derives the proving key; empty generates a random key.
	SigningSecret []byte
	QueueSize     int
	Logger        *logging.Logger
}

// Service is the oracle.
type Service struct {
	mu         sync.RWMutex
	log        *logging.Logger
	privateKey *ecdsa.PrivateKey
	bank       *bank
	consumers  map[string]Fulfiller
	requests   map[string]*Request

	pendingRequests chan *Request
	stopCh          chan struct{}
	stopOnce        sync.Once
	wg              sync.WaitGroup
}

// New creates the oracle. Call Start to begin fulfilling requests.
func New(cfg Config) (*Service, error) {
	key, err := deriveSigningKey(cfg.SigningSecret)
	if err != nil {
		return nil, fmt.Errorf("signing key: %w", err)
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}
	return &Service{
		log:             cfg.Logger,
		privateKey:      key,
		bank:            newBank(),
		consumers:       make(map[string]Fulfiller),
		requests:        make(map[string]*Request),
		pendingRequests: make(chan *Request, cfg.QueueSize),
		stopCh:          make(chan struct{}),
	}, nil
}

// Register sets the callback for consumer.
func (s *Service) Register(consumer string, f Fulfiller) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consumers[consumer] = f
}

// Fund adds to consumer's balance and returns the new available balance.
func (s *Service) Fund(ctx context.Context, consumer string, amount int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	available, err := s.bank.fund(consumer, amount)
	if err != nil {
		return 0, err
	}
	s.log.WithContext(ctx).
		WithField("consumer", consumer).
		WithField("amount", amount).
		WithField("available", available).
		Info("oracle funding added")
	return available, nil
}

// Balance returns consumer's unreserved funding.
func (s *Service) Balance(ctx context.Context, consumer string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bank.available(consumer), nil
}

// RequestRandomness reserves fee and queues a request. It never calls back
// synchronously.
func (s *Service) RequestRandomness(ctx context.Context, consumer string, seed []byte, fee int64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.consumers[consumer]; !ok {
		return "", ErrUnknownConsumer.WithDetails("consumer", consumer)
	}

	req := &Request{
		ID:        uuid.New().String(),
		Consumer:  consumer,
		Seed:      hex.EncodeToString(seed),
		Fee:       fee,
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	res, err := s.bank.reserve(consumer, req.ID, fee)
	if err != nil {
		metrics.RecordVRFRequest("rejected")
		return "", err
	}
	req.ReservationID = res.ID

	select {
	case s.pendingRequests <- req:
	default:
		_ = s.bank.release(res.ID)
		metrics.RecordVRFRequest("rejected")
		return "", ErrQueueFull
	}
	s.requests[req.ID] = req
	metrics.RecordVRFRequest(string(StatusPending))

	s.log.WithContext(ctx).
		WithField("request_id", req.ID).
		WithField("consumer", consumer).
		WithField("fee", fee).
		Info("randomness requested")
	return req.ID, nil
}

// GetRequest returns a copy of a request.
func (s *Service) GetRequest(ctx context.Context, id string) (Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.requests[id]
	if !ok {
		return Request{}, ErrRequestNotFound.WithDetails("id", id)
	}
	return *req, nil
}

// PublicKey returns the proving key in PKIX DER form, for Verify.
func (s *Service) PublicKey() ([]byte, error) {
	return x509.MarshalPKIXPublicKey(&s.privateKey.PublicKey)
}

// Start launches the fulfiller worker.
func (s *Service) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runRequestFulfiller(ctx)
	}()
	s.log.WithContext(ctx).Info("randomness fulfiller started")
}

// Stop ends the worker and waits for it. Queued requests stay pending.
func (s *Service) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}
