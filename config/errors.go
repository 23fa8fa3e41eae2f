package config

import "errors"

var (
	ErrEmptyAddrs      = errors.New("config: addrs must not be empty")
	ErrAddrPubMismatch = errors.New("config: len(addrs) must equal len(pubKeys)")
	ErrMyIDOutOfRange  = errors.New("config: my_id must satisfy 0 <= my_id < N")
	ErrNoBackupSinks   = errors.New("config: at least one backup sink is required")
	ErrDuplicateAddr   = errors.New("config: addrs must not contain duplicates")
	ErrEmptyChannel    = errors.New("config: channel_id must not be empty")
)
