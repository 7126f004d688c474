package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"

	"github.com/mahirjain10/photomosaic-bot/internal/progress"
	"github.com/mahirjain10/photomosaic-bot/internal/utils"
)

const ImgurEndpoint = "https://api.imgur.com/3/upload"

type imgurResponseData struct {
	Link string `json:"link"`
}

type imgurResponse struct {
	Status  int                `json:"status"`
	Success bool               `json:"success"`
	Data    *imgurResponseData `json:"data"`
}

// Imgur uploads images anonymously with an application client id.
type Imgur struct {
	client   *http.Client
	endpoint string
	clientID string
}

// NewImgur returns an uploader posting to endpoint (ImgurEndpoint when empty). A nil
// client gets one with DefaultTimeout.
func NewImgur(clientID string, endpoint string, client *http.Client) *Imgur {
	if endpoint == "" {
		endpoint = ImgurEndpoint
	}
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	return &Imgur{client: client, endpoint: endpoint, clientID: clientID}
}

func (i *Imgur) Upload(ctx context.Context, data []byte, name string, onProgress func(percent int)) (string, error) {
	body, contentType, err := multipartBody(data, name)
	if err != nil {
		return "", &UploadError{Err: err}
	}

	reader := progress.NewReader(bytes.NewReader(body), int64(len(body)), onProgress)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, i.endpoint, reader)
	if err != nil {
		return "", &UploadError{Err: err}
	}
	req.ContentLength = int64(len(body))
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Client-ID "+i.clientID)

	resp, err := i.client.Do(req)
	if err != nil {
		return "", &UploadError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &UploadError{Err: fmt.Errorf("failed to read response: %w", err)}
	}
	if err := utils.CheckStatus(resp); err != nil {
		return "", &UploadError{Err: err}
	}

	var parsed imgurResponse
	if err := utils.ParseJSON(respBody, &parsed); err != nil {
		return "", &UploadError{Err: err}
	}
	if !parsed.Success || parsed.Data == nil || parsed.Data.Link == "" {
		return "", &UploadError{Err: errors.New("imgur did not accept the image")}
	}
	return parsed.Data.Link, nil
}

func multipartBody(data []byte, name string) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, name))
	header.Set("Content-Type", "image/jpeg")
	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", fmt.Errorf("failed to write form part: %w", err)
	}
	if err := w.WriteField("type", "file"); err != nil {
		return nil, "", fmt.Errorf("failed to write form field: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close form: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
