package loyalty

import "errors"

var (
	ErrNilStore            = errors.New("loyalty: store not configured")
	ErrInvalidOwner        = errors.New("loyalty: owner id required")
	ErrAccountNotFound     = errors.New("loyalty: account not found")
	ErrInsufficientPoints  = errors.New("loyalty: insufficient points")
	ErrRewardNotFound      = errors.New("loyalty: reward not found")
	ErrInvalidReferralCode = errors.New("loyalty: invalid referral code")
	ErrSelfReferral        = errors.New("loyalty: self referral")
)
