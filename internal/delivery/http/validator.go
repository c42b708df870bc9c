package http

import (
	"github.com/FilipeAphrody/sentinel-identity/internal/usecase"
)

// requestValidator plugs the lifecycle's request rules into echo's c.Validate.
type requestValidator struct{}

func (requestValidator) Validate(i interface{}) error {
	return usecase.ValidateStruct(i)
}
