package email

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

const defaultBaseURL = "https://api.smtp2go.com/v3"

// Sender delivers notification mail through the SMTP2GO HTTP API. All
// billing-side callers treat delivery as fire-and-forget: a failed email
// never rolls back a wallet or invoice write.
type Sender struct {
	BaseURL string
	apiKey  string
	from    string
	client  *http.Client
}

// NewSender builds a sender; with an empty API key it silently drops mail,
// which keeps local development and tests from needing credentials.
func NewSender(apiKey, from string) *Sender {
	return &Sender{
		BaseURL: defaultBaseURL,
		apiKey:  apiKey,
		from:    from,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type sendRequest struct {
	APIKey   string   `json:"api_key"`
	To       []string `json:"to"`
	Sender   string   `json:"sender"`
	Subject  string   `json:"subject"`
	HTMLBody string   `json:"html_body,omitempty"`
	TextBody string   `json:"text_body,omitempty"`
}

type sendResponse struct {
	Data struct {
		Succeeded int `json:"succeeded"`
		Failed    int `json:"failed"`
	} `json:"data"`
}

func (s *Sender) Send(to, subject, html, text string) error {
	if s.apiKey == "" {
		log.Debug().Str("to", to).Str("subject", subject).Msg("email sending disabled, dropping message")
		return nil
	}

	payload, err := json.Marshal(sendRequest{
		APIKey:   s.apiKey,
		To:       []string{to},
		Sender:   s.from,
		Subject:  subject,
		HTMLBody: html,
		TextBody: text,
	})
	if err != nil {
		return err
	}

	resp, err := s.client.Post(s.BaseURL+"/email/send", "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("smtp2go request: %w", err)
	}
	defer resp.Body.Close()

	var parsed sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("decode smtp2go response: %w", err)
	}
	if parsed.Data.Failed > 0 || parsed.Data.Succeeded == 0 {
		return fmt.Errorf("smtp2go delivery failed for %s", to)
	}
	return nil
}

// SendAsync delivers in the background and only logs failures.
func (s *Sender) SendAsync(to, subject, html, text string) {
	go func() {
		if err := s.Send(to, subject, html, text); err != nil {
			log.Error().Err(err).Str("to", to).Str("subject", subject).Msg("email delivery failed")
		}
	}()
}

func (s *Sender) SendVerificationEmail(to, firstName, link string) {
	body := fmt.Sprintf(`<p>Hello %s,</p>
<p>Thanks for signing up on <strong>Xclusive 3D</strong>. To activate your account and get started with 3D video conversions, please verify your email address:</p>
<p><a href="%s">Verify Email</a></p>
<p>If you didn't create this account, you can safely ignore this email.</p>`, firstName, link)
	s.SendAsync(to, "Verify Your Xclusive 3D Account", body, "")
}

func (s *Sender) SendTopUpReceipt(to, firstName string, credits int64, total float64, currency, invoiceNumber string) {
	body := fmt.Sprintf(`<p>Hi %s,</p>
<p>Your wallet top-up of <strong>%d credits</strong> for %s %.2f (incl. VAT) was successful.</p>
<p>Invoice number: %s</p>`, firstName, credits, currency, total, invoiceNumber)
	s.SendAsync(to, "Your Xclusive 3D Purchase Receipt", body, "")
}

func (s *Sender) SendUploadConfirmation(to, firstName, fileName string) {
	body := fmt.Sprintf(`<p>Hi %s,</p>
<p>Your video <strong>%s</strong> has been successfully uploaded.</p>
<p>We'll begin converting it to 3D shortly. You will receive another email once it's done.</p>`, firstName, fileName)
	s.SendAsync(to, "Your Video is Uploaded – Xclusive 3D", body, "")
}

func (s *Sender) SendConversionComplete(to, firstName, fileName, downloadURL string) {
	body := fmt.Sprintf(`<p>Hi %s,</p>
<p>Your video <strong>%s</strong> has been successfully converted to 3D.</p>
<p>You can <a href="%s">click here</a> to download it.</p>`, firstName, fileName, downloadURL)
	s.SendAsync(to, "Your 3D Video is Ready – Xclusive 3D", body, "")
}
