package iam

import "context"

type ctxKey string

const principalKey ctxKey = "qfold.principal"

func (s *IAMService) Principal(ctx context.Context) (*Principal, bool) {
	if v := ctx.Value(principalKey); v != nil {
		if p, ok := v.(*Principal); ok {
			return p, true
		}
	}
	return nil, false
}
