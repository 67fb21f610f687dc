package middleware

import (
	"bytes"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"mindbridge-go/pkg/log"
)

// 请求体和响应体最多记录的字节数
const maxLoggedBody = 1024

var secretFields = regexp.MustCompile(`"(password|token|refreshToken)"\s*:\s*"[^"]*"`)

// bodyLogWriter 用于捕获响应体
type bodyLogWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

// Write 将响应写入 gin.ResponseWriter，同时保留前 maxLoggedBody 个字节用于日志
func (w bodyLogWriter) Write(b []byte) (int, error) {
	if room := maxLoggedBody - w.body.Len(); room > 0 {
		if len(b) < room {
			room = len(b)
		}
		w.body.Write(b[:room])
	}
	return w.ResponseWriter.Write(b)
}

// redact 屏蔽密码与 token，并截断过长的内容。
func redact(body []byte) string {
	if len(body) > maxLoggedBody {
		body = body[:maxLoggedBody]
	}
	return secretFields.ReplaceAllString(string(body), `"$1":"***"`)
}

// loggable 文件上传和 WebSocket 升级请求不记录请求体。
func loggable(c *gin.Context) bool {
	if c.Request.Body == nil || c.IsWebsocket() {
		return false
	}
	return !strings.HasPrefix(c.ContentType(), "multipart/")
}

// RequestLogger 是一个 Gin 中间件，用于记录请求和响应日志。
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		var requestBody []byte
		if loggable(c) {
			requestBody, _ = io.ReadAll(c.Request.Body)
			// 将读取的请求体重新设置回去，以便后续处理函数可以正常读取
			c.Request.Body = io.NopCloser(bytes.NewBuffer(requestBody))
		}

		blw := &bodyLogWriter{body: bytes.NewBufferString(""), ResponseWriter: c.Writer}
		c.Writer = blw

		c.Next()

		log.Infow("HTTP Request Log",
			"statusCode", c.Writer.Status(),
			"latency", time.Since(startTime).String(),
			"clientIP", c.ClientIP(),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"requestBody", redact(requestBody),
			"responseBody", redact(blw.body.Bytes()),
		)
	}
}
