package messages

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Egham-7/medchat/internal/models"

	"github.com/anthropics/anthropic-sdk-go"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/valyala/fasthttp"
)

const (
	pdfContentType         = "application/pdf"
	defaultDownloadTimeout = 60 * time.Second
)

// ErrUnsupportedURL is returned for attachment urls that are not http(s)
var ErrUnsupportedURL = errors.New("attachment url must be http or https")

// AttachmentConverter turns client attachments into Anthropic content blocks.
// Images are passed by URL; PDFs are downloaded and sent inline.
type AttachmentConverter struct {
	client   *fasthttp.Client
	maxBytes int64
	timeout  time.Duration
}

func NewAttachmentConverter(maxBytes int64) *AttachmentConverter {
	return &AttachmentConverter{
		client: &fasthttp.Client{
			Name:                "medchat",
			MaxResponseBodySize: int(maxBytes),
			ReadTimeout:         defaultDownloadTimeout,
		},
		maxBytes: maxBytes,
		timeout:  defaultDownloadTimeout,
	}
}

// IsPDF matches on content type or file extension
func IsPDF(att models.Attachment) bool {
	return att.ContentType == pdfContentType || strings.HasSuffix(strings.ToLower(att.Name), ".pdf")
}

func IsImage(att models.Attachment) bool {
	return strings.HasPrefix(att.ContentType, "image/")
}

// Convert returns the content block for one attachment. Unknown types are
// tried as image URLs.
func (ac *AttachmentConverter) Convert(ctx context.Context, att models.Attachment, requestID string) (anthropic.ContentBlockParamUnion, error) {
	switch {
	case IsImage(att):
		if att.Data != "" {
			return anthropic.NewImageBlock(anthropic.Base64ImageSourceParam{
				Data:      att.Data,
				MediaType: anthropic.Base64ImageSourceMediaType(att.ContentType),
			}), nil
		}
		if err := checkURL(att.URL); err != nil {
			return anthropic.ContentBlockParamUnion{}, fmt.Errorf("failed to process %s: %w", attachmentName(att), err)
		}
		return anthropic.NewImageBlock(anthropic.URLImageSourceParam{URL: att.URL}), nil
	case IsPDF(att):
		data := att.Data
		if data == "" {
			raw, err := ac.download(ctx, att.URL)
			if err != nil {
				return anthropic.ContentBlockParamUnion{}, fmt.Errorf("failed to process %s: %w", attachmentName(att), err)
			}
			data = base64.StdEncoding.EncodeToString(raw)
		}
		return anthropic.NewDocumentBlock(anthropic.Base64PDFSourceParam{Data: data}), nil
	default:
		fiberlog.Warnf("[%s] Unknown attachment type %q, treating as image", requestID, att.ContentType)
		if err := checkURL(att.URL); err != nil {
			return anthropic.ContentBlockParamUnion{}, fmt.Errorf("failed to process %s: %w", attachmentName(att), err)
		}
		return anthropic.NewImageBlock(anthropic.URLImageSourceParam{URL: att.URL}), nil
	}
}

// ConvertMessages maps chat messages to Anthropic params. Roles other than
// user become assistant turns; attachments precede the message text.
func (ac *AttachmentConverter) ConvertMessages(ctx context.Context, messages []models.ChatMessage, requestID string) ([]anthropic.MessageParam, error) {
	params := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		blocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.Attachments)+1)
		for _, att := range msg.Attachments {
			block, err := ac.Convert(ctx, att, requestID)
			if err != nil {
				return nil, err
			}
			blocks = append(blocks, block)
		}
		if msg.Content != "" || len(blocks) == 0 {
			blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
		}

		if msg.Role == "user" {
			params = append(params, anthropic.NewUserMessage(blocks...))
		} else {
			params = append(params, anthropic.NewAssistantMessage(blocks...))
		}
	}
	return params, nil
}

type downloadResult struct {
	body []byte
	err  error
}

// download fetches rawURL within the converter timeout, cut short by ctx's
// deadline. A cancelled ctx returns at once; the request itself still runs
// out its timeout in the background.
func (ac *AttachmentConverter) download(ctx context.Context, rawURL string) ([]byte, error) {
	if err := checkURL(rawURL); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	timeout := ac.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	done := make(chan downloadResult, 1)
	go func() {
		body, err := ac.fetch(rawURL, timeout)
		done <- downloadResult{body: body, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("download cancelled: %w", ctx.Err())
	case res := <-done:
		return res.body, res.err
	}
}

func (ac *AttachmentConverter) fetch(rawURL string, timeout time.Duration) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(rawURL)
	req.Header.SetMethod(fasthttp.MethodGet)

	if err := ac.client.DoTimeout(req, resp, timeout); err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return nil, fmt.Errorf("download failed: status %d", resp.StatusCode())
	}

	body := resp.Body()
	if int64(len(body)) > ac.maxBytes {
		return nil, fmt.Errorf("download exceeds %d bytes", ac.maxBytes)
	}
	out := make([]byte, len(body))
	copy(out, body)
	return out, nil
}

func checkURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("attachment has no url")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsupportedURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return ErrUnsupportedURL
	}
	return nil
}

func attachmentName(att models.Attachment) string {
	if att.Name != "" {
		return att.Name
	}
	return att.URL
}
