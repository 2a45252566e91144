package response

import (
	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/webapi/proxyutil"
)

// codeErr pairs an API error code with a user-facing message so proxyutil
// can render both.
type codeErr struct {
	code uint32
	msg  string
}

func (e codeErr) Error() string {
	return e.msg
}

func (e codeErr) Code() uint32 {
	return e.code
}

// Success writes the standard success envelope around data.
func Success(c *gin.Context, data interface{}) {
	proxyutil.SuccessJson(c, data)
}

// Error writes the standard failure envelope. HTTP status stays 200; the
// code field carries the failure.
func Error(c *gin.Context, code int, message string) {
	proxyutil.FailJson(c, 200, codeErr{code: uint32(code), msg: message})
}
