package campaign

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized reports a caller that may not perform the action.
	ErrUnauthorized = errors.New("campaign: unauthorized")
	// ErrCampaignNotFound reports an unknown campaign address.
	ErrCampaignNotFound = errors.New("campaign: not found")
	// ErrCampaignExists reports a second instantiation at the same address.
	ErrCampaignExists = errors.New("campaign: already instantiated")
	// ErrUnknownTokenRequest reports an acknowledgement for a request id never issued.
	ErrUnknownTokenRequest = errors.New("campaign: unknown token request")
	// ErrTokenConflict reports an acknowledgement that contradicts an earlier one.
	ErrTokenConflict = errors.New("campaign: conflicting token acknowledgement")
	// ErrInvalidCommand reports a malformed command payload.
	ErrInvalidCommand = errors.New("campaign: invalid command")

	errMissingStore       = errors.New("ledger store is required")
	errMissingViewingKeys = errors.New("viewing key provider is required")
)

// ServiceError carries a machine-readable code of the form operation.reason.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the machine-readable error code.
func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew         = "campaign.service.new"
	opInstantiate        = "campaign.instantiate"
	opChangeText         = "campaign.change_text"
	opContribute         = "campaign.contribute"
	opRefund             = "campaign.refund"
	opCancel             = "campaign.cancel"
	opPayOut             = "campaign.pay_out"
	opClaimReward        = "campaign.claim_reward"
	opComment            = "campaign.comment"
	opFlagSpam           = "campaign.flag_spam"
	opGenerateViewingKey = "campaign.generate_viewing_key"
	opSetViewingKey      = "campaign.set_viewing_key"
	opAcknowledgeToken   = "campaign.acknowledge_token"
	opExpire             = "campaign.expire"
	opQueryStatus        = "campaign.query_status"
	opQueryComments      = "campaign.query_comments"
	opQueryContributors  = "campaign.query_contributors"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}
