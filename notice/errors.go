package notice

import "errors"

var (
	ErrFailedToReadFile  = errors.New("failed to read catalog file")
	ErrFailedToParseYAML = errors.New("failed to parse catalog YAML")
	ErrUnknownKind       = errors.New("no template for message kind")
	ErrEmptyTemplate     = errors.New("template missing subject or body")
)
