package acs

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

const apiVersion = "2024-04-15"

// Client talks to the call-automation platform's REST surface: answering an
// inbound call with a callback URI and media-streaming configuration, reading
// call properties, and hanging up.
type Client struct {
	endpoint   string
	accessKey  []byte
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(endpoint, accessKey string, logger *zap.Logger) (*Client, error) {
	key, err := base64.StdEncoding.DecodeString(accessKey)
	if err != nil {
		return nil, fmt.Errorf("invalid access key: %w", err)
	}
	return &Client{
		endpoint:   endpoint,
		accessKey:  key,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
	}, nil
}

// MediaStreamingOptions configures the duplex audio transport opened by the
// platform when the call is answered.
type MediaStreamingOptions struct {
	TransportURL   string `json:"transportUrl"`
	TransportType  string `json:"transportType"`
	ContentType    string `json:"contentType"`
	AudioChannel   string `json:"audioChannelType"`
	StartOnAnswer  bool   `json:"startMediaStreaming"`
	BidirectionalF bool   `json:"enableBidirectional"`
	AudioFormat    string `json:"audioFormat"`
}

// DefaultMediaStreaming returns bidirectional 16-bit PCM streaming to the
// given websocket transport URL.
func DefaultMediaStreaming(transportURL string, sampleRate int) MediaStreamingOptions {
	format := "Pcm24KMono"
	if sampleRate == 16000 {
		format = "Pcm16KMono"
	}
	return MediaStreamingOptions{
		TransportURL:   transportURL,
		TransportType:  "websocket",
		ContentType:    "audio",
		AudioChannel:   "mixed",
		StartOnAnswer:  true,
		BidirectionalF: true,
		AudioFormat:    format,
	}
}

type AnswerCallRequest struct {
	IncomingCallContext string                `json:"incomingCallContext"`
	CallbackURI         string                `json:"callbackUri"`
	MediaStreaming      MediaStreamingOptions `json:"mediaStreamingOptions"`
}

type AnswerCallResponse struct {
	CallConnectionID string `json:"callConnectionId"`
	ServerCallID     string `json:"serverCallId"`
	State            string `json:"callConnectionState"`
}

// AnswerCall answers an inbound call. The callback URI is the per-call
// lifecycle address; the media options carry the audio transport URL.
func (c *Client) AnswerCall(req AnswerCallRequest) (*AnswerCallResponse, error) {
	var resp AnswerCallResponse
	if err := c.do("POST", "/calling/callConnections:answer", req, &resp); err != nil {
		return nil, fmt.Errorf("answer call failed: %w", err)
	}

	c.logger.Info("call answered",
		zap.String("call_connection_id", resp.CallConnectionID),
		zap.String("state", resp.State),
	)
	return &resp, nil
}

type CallProperties struct {
	CallConnectionID string `json:"callConnectionId"`
	ServerCallID     string `json:"serverCallId"`
	State            string `json:"callConnectionState"`
	CorrelationID    string `json:"correlationId"`
}

// GetCallProperties fetches connection properties for a connected call.
func (c *Client) GetCallProperties(callConnectionID string) (*CallProperties, error) {
	var props CallProperties
	path := "/calling/callConnections/" + url.PathEscape(callConnectionID)
	if err := c.do("GET", path, nil, &props); err != nil {
		return nil, fmt.Errorf("get call properties failed: %w", err)
	}
	return &props, nil
}

// Hangup terminates a call connection.
func (c *Client) Hangup(callConnectionID string) error {
	path := "/calling/callConnections/" + url.PathEscape(callConnectionID)
	if err := c.do("DELETE", path, nil, nil); err != nil {
		return fmt.Errorf("hangup failed: %w", err)
	}
	return nil
}

func (c *Client) do(method, path string, body, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	endpoint := c.endpoint + path + "?api-version=" + apiVersion
	httpReq, err := http.NewRequest(method, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.sign(httpReq, payload)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("platform returned %d: %s", resp.StatusCode, string(msg))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// sign applies the platform's HMAC-SHA256 request signature over the verb,
// path-and-query, date and content hash.
func (c *Client) sign(req *http.Request, body []byte) {
	contentHash := sha256.Sum256(body)
	contentHashB64 := base64.StdEncoding.EncodeToString(contentHash[:])
	date := time.Now().UTC().Format(http.TimeFormat)

	pathAndQuery := req.URL.Path
	if req.URL.RawQuery != "" {
		pathAndQuery += "?" + req.URL.RawQuery
	}

	stringToSign := fmt.Sprintf("%s\n%s\n%s;%s;%s",
		req.Method, pathAndQuery, date, req.URL.Host, contentHashB64)

	mac := hmac.New(sha256.New, c.accessKey)
	mac.Write([]byte(stringToSign))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	req.Header.Set("x-ms-date", date)
	req.Header.Set("x-ms-content-sha256", contentHashB64)
	req.Header.Set("Authorization",
		"HMAC-SHA256 SignedHeaders=x-ms-date;host;x-ms-content-sha256&Signature="+signature)
}
