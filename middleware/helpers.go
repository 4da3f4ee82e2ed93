package middleware

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/Dosada05/ladder-system/models"
	"github.com/golang-jwt/jwt/v4"
)

// Имена JWT claims, которые кладёт auth-сервис при выдаче токена.
const (
	jwtClaimUserID = "user_id"
	jwtClaimRole   = "role"
)

func GetUserIDFromContext(ctx context.Context) (int, error) {
	claims, ok := ctx.Value(userContextKey).(jwt.MapClaims)
	if !ok {
		return 0, errors.New("user claims not found in context or invalid type")
	}

	userIDClaim, ok := claims[jwtClaimUserID]
	if !ok {
		return 0, fmt.Errorf("missing '%s' claim in token", jwtClaimUserID)
	}

	userIDFloat, ok := userIDClaim.(float64)
	if !ok {
		// Некоторые клиенты кладут ID строкой.
		userIDStr, okStr := userIDClaim.(string)
		if okStr {
			userIDInt, err := strconv.Atoi(userIDStr)
			if err == nil {
				if userIDInt <= 0 {
					return 0, fmt.Errorf("invalid user ID value in '%s' claim: %d", jwtClaimUserID, userIDInt)
				}
				return userIDInt, nil
			}
		}
		return 0, fmt.Errorf("invalid type for '%s' claim: expected float64 or string, got %T", jwtClaimUserID, userIDClaim)
	}

	if userIDFloat != float64(int(userIDFloat)) {
		return 0, fmt.Errorf("'%s' claim is not an integer: %f", jwtClaimUserID, userIDFloat)
	}

	userID := int(userIDFloat)
	if userID <= 0 {
		return 0, fmt.Errorf("invalid user ID value in '%s' claim: %d", jwtClaimUserID, userID)
	}

	return userID, nil
}

func GetUserRoleFromContext(ctx context.Context) (models.UserRole, error) {
	claims, ok := ctx.Value(userContextKey).(jwt.MapClaims)
	if !ok {
		return "", errors.New("user claims not found in context or invalid type")
	}

	roleClaim, ok := claims[jwtClaimRole]
	if !ok {
		return "", fmt.Errorf("missing '%s' claim in token", jwtClaimRole)
	}

	roleStr, ok := roleClaim.(string)
	if !ok {
		return "", fmt.Errorf("invalid type for '%s' claim: expected string, got %T", jwtClaimRole, roleClaim)
	}

	role := models.UserRole(roleStr)

	switch role {
	case models.RoleAdmin, models.RolePlayer:
		return role, nil
	default:
		return "", fmt.Errorf("invalid role value in claim: %q", roleStr)
	}
}
