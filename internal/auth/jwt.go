package auth

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/fathima-sithara/conversation-service/internal/config"
)

// Validator verifies bearer tokens minted by the external identity service
// and extracts the principal id.
type Validator struct {
	alg    string
	pub    *rsa.PublicKey
	secret []byte
}

func NewValidator(cfg config.JWT) (*Validator, error) {
	alg := strings.ToUpper(cfg.Alg)
	switch alg {
	case "RS256":
		b, err := os.ReadFile(cfg.PublicKeyPath)
		if err != nil {
			return nil, err
		}
		block, _ := pem.Decode(b)
		if block == nil {
			return nil, errors.New("failed to decode public key")
		}
		pubIfc, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		pub, ok := pubIfc.(*rsa.PublicKey)
		if !ok {
			return nil, errors.New("not rsa public key")
		}
		return &Validator{alg: alg, pub: pub}, nil
	case "HS256":
		return &Validator{alg: alg, secret: []byte(cfg.HSSecret)}, nil
	default:
		return nil, errors.New("unsupported jwt alg")
	}
}

func (v *Validator) Validate(tokenStr string) (string, error) {
	tok, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if v.alg == "RS256" {
			return v.pub, nil
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{v.alg}))
	if err != nil {
		return "", err
	}
	if claims, ok := tok.Claims.(jwt.MapClaims); ok && tok.Valid {
		if sub, ok := claims["sub"].(string); ok {
			return sub, nil
		}
		if userID, ok := claims["user_id"].(string); ok {
			return userID, nil
		}
	}
	return "", errors.New("invalid token")
}
