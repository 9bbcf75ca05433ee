package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	OwnerID uuid.UUID
	JTI     string
}

// AccessTokenClaims represents the typed JWT presented by clients. OwnerID is
// the partition key for every note the caller may touch.
type AccessTokenClaims struct {
	OwnerID uuid.UUID `json:"owner_id"`
	jwt.RegisteredClaims
}
