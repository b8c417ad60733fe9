package response

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/examslot-api/pkg/errors"
)

// Envelope is the JSON body of every API response.
type Envelope struct {
	Data  interface{}            `json:"data,omitempty"`
	Error *appErrors.Error       `json:"error,omitempty"`
	Meta  map[string]interface{} `json:"meta,omitempty"`
}

func noStore(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
}

// JSON sends a success envelope.
func JSON(c *gin.Context, status int, data interface{}) {
	noStore(c)
	c.JSON(status, Envelope{Data: data})
}

// WithMeta sends a success envelope carrying listing metadata.
func WithMeta(c *gin.Context, status int, data interface{}, meta map[string]interface{}) {
	noStore(c)
	c.JSON(status, Envelope{Data: data, Meta: meta})
}

// Attachment streams a generated file as a download.
func Attachment(c *gin.Context, contentType, filename string, payload []byte) {
	noStore(c)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, contentType, payload)
}

// Error converts err into the envelope's error block and its HTTP status.
func Error(c *gin.Context, err error) {
	appErr := appErrors.FromError(err)
	noStore(c)
	c.JSON(appErr.Status, Envelope{Error: appErr})
}
