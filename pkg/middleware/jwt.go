package middleware

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// NewJWTValidator returns a TokenValidator for HS256 tokens signed with
// secret. The user id is read from "user_id", falling back to "sub".
func NewJWTValidator(secret string) TokenValidator {
	key := []byte(secret)
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	return func(tokenString string) (*Claims, error) {
		claims := jwt.MapClaims{}
		token, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
			return key, nil
		})
		if err != nil {
			return nil, fmt.Errorf("parse token: %w", err)
		}
		if !token.Valid {
			return nil, errors.New("token is not valid")
		}

		out := &Claims{}
		out.UserID, _ = claims["user_id"].(string)
		if out.UserID == "" {
			out.UserID, _ = claims["sub"].(string)
		}
		out.Email, _ = claims["email"].(string)
		out.Role, _ = claims["role"].(string)
		if out.UserID == "" {
			return nil, errors.New("token has no subject")
		}
		return out, nil
	}
}
