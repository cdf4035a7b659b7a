package response

import (
	"net/http"

	appErr "pokertable-service/pkg/errors"

	"github.com/gin-gonic/gin"
)

type Body struct {
	Code int         `json:"code"`
	Data interface{} `json:"data"`
	Msg  string      `json:"msg"`
}

func Success(c *gin.Context, data interface{}) {
	JSON(c, http.StatusOK, data, "")
}

func SuccessWithMsg(c *gin.Context, data interface{}, msg string) {
	JSON(c, http.StatusOK, data, msg)
}

func Error(c *gin.Context, status int, msg string) {
	JSON(c, status, gin.H{}, msg)
}

// FromError writes err with the status of its category. Errors outside the
// taxonomy are internal.
func FromError(c *gin.Context, err error) {
	Error(c, StatusOf(err), err.Error())
}

func StatusOf(err error) int {
	switch appErr.Kind(err) {
	case appErr.ErrValidation:
		return http.StatusBadRequest
	case appErr.ErrConflict:
		return http.StatusConflict
	case appErr.ErrForbidden:
		return http.StatusForbidden
	case appErr.ErrNotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func JSON(c *gin.Context, status int, data interface{}, msg string) {
	if data == nil {
		data = gin.H{}
	}
	c.JSON(status, Body{
		Code: status,
		Data: data,
		Msg:  msg,
	})
}
