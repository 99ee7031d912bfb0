package repository

import "errors"

var (
	// ErrNoReference indicates a request named neither a URL nor a blob
	ErrNoReference = errors.New("no image reference given")

	// ErrAmbiguousReference indicates a request named both a URL and a blob
	ErrAmbiguousReference = errors.New("only one image reference may be given")

	// ErrSourceUnavailable indicates the requested source is not configured
	ErrSourceUnavailable = errors.New("image source unavailable")
)
