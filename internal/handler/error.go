package handler

import (
	"errors"
	"net/http"

	"app/internal/domain/model"
	"app/internal/middleware"
	"app/internal/usecase"

	"github.com/labstack/echo/v4"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

// エラー種別→HTTPステータスの対応表。
// メッセージ文字列を見て分岐しない（種別で判定する）。
var statusByError = []struct {
	err    error
	status int
}{
	{usecase.ErrValidation, http.StatusBadRequest},
	{usecase.ErrInvalidStatus, http.StatusBadRequest},
	{usecase.ErrInvalidTransition, http.StatusBadRequest},
	{usecase.ErrInsufficientStock, http.StatusBadRequest},
	{usecase.ErrInvalidSignature, http.StatusBadRequest},
	{usecase.ErrDuplicatePaymentLink, http.StatusConflict},
	{usecase.ErrConflict, http.StatusConflict},
	{usecase.ErrUnauthorized, http.StatusUnauthorized},
	{usecase.ErrPermissionDenied, http.StatusForbidden},
	{usecase.ErrFlowerNotFound, http.StatusNotFound},
	{usecase.ErrOrderNotFound, http.StatusNotFound},
	{usecase.ErrTransactionNotFound, http.StatusNotFound},
	{usecase.ErrGateway, http.StatusBadGateway},
}

func writeError(c echo.Context, err error) error {
	if err == nil {
		return nil
	}
	for _, m := range statusByError {
		if errors.Is(err, m.err) {
			return c.JSON(m.status, ErrorResponse{Error: m.err.Error()})
		}
	}

	//500。内部の詳細は漏らさない
	c.Logger().Error(err)
	return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
}

func getUserIDFromContext(c echo.Context) (int64, bool) {
	v, ok := c.Get(middleware.CtxUserIDKey).(int64)
	return v, ok && v > 0
}

func getRoleFromContext(c echo.Context) model.Role {
	v, _ := c.Get(middleware.CtxUserRoleKey).(string)
	return model.Role(v)
}
