package api

import "errors"

// Sentinel kinds for transport-level rejections.
var (
	ErrMethod      = errors.New("method not allowed")
	ErrContentType = errors.New("content type must be application/json")
	ErrBodyTooBig  = errors.New("request body too large")
	ErrReadBody    = errors.New("read request body")
)
