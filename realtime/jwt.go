package realtime

import (
	gojwt "github.com/golang-jwt/jwt/v5"
)

// identity claims carried by the platform jwt.
// the token is verified by the platform, not by this client,
// so the claims are parsed unverified for display and authorship checks only.
type ByJwt struct {
	UserId   string
	UserName string
}

func ParseByJwtUnverified(byJwtStr string) (*ByJwt, error) {
	parser := gojwt.NewParser()
	token, _, err := parser.ParseUnverified(byJwtStr, gojwt.MapClaims{})
	if err != nil {
		return nil, err
	}

	claims := token.Claims.(gojwt.MapClaims)

	byJwt := &ByJwt{}

	if userId, ok := claims["user_id"].(string); ok {
		byJwt.UserId = userId
	}
	if byJwt.UserId == "" {
		if sub, ok := claims["sub"].(string); ok {
			byJwt.UserId = sub
		}
	}
	if userName, ok := claims["user_name"].(string); ok {
		byJwt.UserName = userName
	}

	return byJwt, nil
}
