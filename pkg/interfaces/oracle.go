package interfaces

import (
	"context"

	"github.com/pangeacyber/pangea-aws-sdk-go/pkg/aiguard"
)

// Oracle evaluates a conversation against a named recipe and returns a verdict
type Oracle interface {
	Guard(ctx context.Context, req *aiguard.GuardRequest) (*aiguard.GuardResponse, error)
}
