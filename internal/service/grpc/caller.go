package grpcsvc

import (
	"context"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/orders/internal/domain"
)

const (
	authorizationHeader = "authorization"
	bearerPrefix        = "bearer "
)

// callerFromContext достаёт bearer-токен из метаданных запроса. Подпись токена здесь
// не проверяется: токен пробрасывается в справочник аккаунтов, который и решает,
// чьи аккаунты вернуть. Claim sub читается только для логов.
func callerFromContext(ctx context.Context) (domain.Caller, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return domain.Caller{}, status.Error(codes.Unauthenticated, "authorization metadata is required")
	}

	var token string
	for _, value := range md.Get(authorizationHeader) {
		value = strings.TrimSpace(value)
		if len(value) > len(bearerPrefix) && strings.EqualFold(value[:len(bearerPrefix)], bearerPrefix) {
			token = strings.TrimSpace(value[len(bearerPrefix):])
			break
		}
	}
	if token == "" {
		return domain.Caller{}, status.Error(codes.Unauthenticated, "bearer token is required")
	}

	return domain.Caller{Subject: subjectOf(token), Token: token}, nil
}

func subjectOf(token string) string {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return ""
	}
	subject, err := claims.GetSubject()
	if err != nil {
		return ""
	}
	return subject
}
