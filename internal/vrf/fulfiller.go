package vrf

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/holiman/uint256"

	"github.com/SAFERMOON/SAFERWINNING/internal/metrics"
)

// runRequestFulfiller processes pending requests.
func (s *Service) runRequestFulfiller(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case request := <-s.pendingRequests:
			s.fulfillRequest(ctx, request)
		}
	}
}

// fulfillRequest generates randomness and delivers it to the consumer. The
// fee is consumed once a value has been produced, whatever the consumer
// does with it.
func (s *Service) fulfillRequest(ctx context.Context, request *Request) {
	seed, err := hex.DecodeString(request.Seed)
	if err != nil {
		seed = []byte(request.Seed)
	}

	proof, output, err := prove(s.privateKey, requestInput(request.ID, seed))
	if err != nil {
		s.markRequestFailed(ctx, request, fmt.Sprintf("generate proof: %v", err), false)
		return
	}

	s.mu.Lock()
	consumer := s.consumers[request.Consumer]
	request.Output = hex.EncodeToString(output[:])
	request.Proof = hex.EncodeToString(proof)
	s.mu.Unlock()

	if consumer == nil {
		s.markRequestFailed(ctx, request, "consumer not registered", false)
		return
	}

	value := new(uint256.Int).SetBytes(output[:])
	if err := consumer.FulfillRandomness(ctx, request.ID, value); err != nil {
		s.markRequestFailed(ctx, request, fmt.Sprintf("consumer callback: %v", err), true)
		return
	}

	s.mu.Lock()
	request.Status = StatusFulfilled
	request.FulfilledAt = time.Now().UTC()
	if err := s.bank.consume(request.ReservationID); err != nil {
		s.log.WithContext(ctx).WithError(err).WithField("request_id", request.ID).Warn("consume reservation")
	}
	s.mu.Unlock()

	metrics.RecordVRFRequest(string(StatusFulfilled))
	metrics.RecordVRFFulfillment(request.FulfilledAt.Sub(request.CreatedAt))
	s.log.WithContext(ctx).WithFields(map[string]interface{}{
		"request_id": request.ID,
		"consumer":   request.Consumer,
	}).Info("randomness fulfilled")
}

// markRequestFailed marks a request as failed, consuming its fee when a
// value was delivered and releasing it otherwise.
func (s *Service) markRequestFailed(ctx context.Context, request *Request, errMsg string, delivered bool) {
	s.mu.Lock()
	request.Status = StatusFailed
	request.Error = errMsg
	request.FulfilledAt = time.Now().UTC()
	var err error
	if delivered {
		err = s.bank.consume(request.ReservationID)
	} else {
		err = s.bank.release(request.ReservationID)
	}
	s.mu.Unlock()

	if err != nil {
		s.log.WithContext(ctx).WithError(err).WithField("request_id", request.ID).Warn("settle reservation")
	}
	metrics.RecordVRFRequest(string(StatusFailed))
	s.log.WithContext(ctx).WithFields(map[string]interface{}{
		"request_id": request.ID,
		"consumer":   request.Consumer,
		"error":      errMsg,
	}).Warn("randomness request failed")
}
