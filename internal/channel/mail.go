package channel

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/text/encoding/htmlindex"
)

// InboundEmail is a customer message received by the email channel
type InboundEmail struct {
	MessageID     string
	From          string // Bare address, lower case
	FromName      string
	Subject       string
	Body          string // Plain text with quoted replies removed
	References    string
	AutoSubmitted bool // Vacation replies, bounces and list traffic
}

// ErrNoSender is returned for messages without a usable From address
var ErrNoSender = errors.New("email has no sender address")

var wordDecoder = &mime.WordDecoder{CharsetReader: charsetReader}

// quoteStart matches the line mail clients put above a quoted earlier message
var quoteStart = regexp.MustCompile(`(?i)^(on .+ wrote:|.+ (пишет|написал|написала|писал\(а\)|жазды):|-{2,}\s*(original message|исходное сообщение)\s*-{2,})$`)

// ParseEmail reads a raw RFC 5322 message
func ParseEmail(r io.Reader) (*InboundEmail, error) {
	msg, err := mail.ReadMessage(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read email message: %w", err)
	}

	email, err := fromHeader(msg.Header)
	if err != nil {
		return nil, err
	}

	body, err := extractBody(msg.Header.Get("Content-Type"), msg.Header.Get("Content-Transfer-Encoding"), msg.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to extract body: %w", err)
	}
	email.Body = replyText(body)
	return email, nil
}

func fromHeader(header mail.Header) (*InboundEmail, error) {
	parser := mail.AddressParser{WordDecoder: wordDecoder}
	from, err := parser.Parse(header.Get("From"))
	if err != nil || from.Address == "" {
		return nil, ErrNoSender
	}

	email := &InboundEmail{
		MessageID:     strings.TrimSpace(header.Get("Message-ID")),
		From:          strings.ToLower(from.Address),
		FromName:      from.Name,
		Subject:       strings.TrimSpace(decodeHeader(header.Get("Subject"))),
		References:    strings.TrimSpace(header.Get("References")),
		AutoSubmitted: autoSubmitted(header),
	}
	if inReplyTo := strings.TrimSpace(header.Get("In-Reply-To")); inReplyTo != "" && !strings.Contains(email.References, inReplyTo) {
		email.References = strings.TrimSpace(email.References + " " + inReplyTo)
	}
	return email, nil
}

// autoSubmitted reports machine-generated mail that must not be answered
func autoSubmitted(header mail.Header) bool {
	if v := strings.ToLower(strings.TrimSpace(header.Get("Auto-Submitted"))); v != "" && v != "no" {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(header.Get("Precedence"))) {
	case "bulk", "junk", "list", "auto_reply":
		return true
	}
	return header.Get("X-Autoreply") != "" || header.Get("X-Autorespond") != "" || header.Get("List-Id") != ""
}

func extractBody(contentType, transferEncoding string, body io.Reader) (string, error) {
	if contentType == "" {
		return readPart(body, "text/plain", nil, transferEncoding)
	}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return readPart(body, "text/plain", nil, transferEncoding)
	}
	if strings.HasPrefix(mediaType, "multipart/") {
		return extractMultipart(body, params["boundary"])
	}
	return readPart(body, mediaType, params, transferEncoding)
}

// extractMultipart prefers text/plain parts and falls back to HTML
func extractMultipart(body io.Reader, boundary string) (string, error) {
	mr := multipart.NewReader(body, boundary)
	var textParts, htmlParts []string

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		if strings.HasPrefix(strings.ToLower(part.Header.Get("Content-Disposition")), "attachment") {
			continue
		}

		mediaType, params, _ := mime.ParseMediaType(part.Header.Get("Content-Type"))
		switch {
		case strings.HasPrefix(mediaType, "multipart/"):
			if nested, err := extractMultipart(part, params["boundary"]); err == nil && nested != "" {
				textParts = append(textParts, nested)
			}
		case mediaType == "text/plain" || mediaType == "":
			if content, err := readPart(part, "text/plain", params, part.Header.Get("Content-Transfer-Encoding")); err == nil {
				textParts = append(textParts, content)
			}
		case mediaType == "text/html":
			if content, err := readPart(part, mediaType, params, part.Header.Get("Content-Transfer-Encoding")); err == nil {
				htmlParts = append(htmlParts, content)
			}
		}
	}

	if len(textParts) > 0 {
		return strings.Join(textParts, "\n\n"), nil
	}
	return strings.Join(htmlParts, "\n\n"), nil
}

// readPart decodes the transfer encoding and charset; HTML is reduced to text
func readPart(body io.Reader, mediaType string, params map[string]string, transferEncoding string) (string, error) {
	reader := body
	switch strings.ToLower(strings.TrimSpace(transferEncoding)) {
	case "quoted-printable":
		reader = quotedprintable.NewReader(body)
	case "base64":
		reader = base64.NewDecoder(base64.StdEncoding, body)
	}

	if charset := params["charset"]; charset != "" && !strings.EqualFold(charset, "utf-8") && !strings.EqualFold(charset, "us-ascii") {
		decoded, err := charsetReader(charset, reader)
		if err != nil {
			return "", err
		}
		reader = decoded
	}

	content, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	if mediaType == "text/html" {
		return htmlText(string(content)), nil
	}
	return string(content), nil
}

func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, fmt.Errorf("unsupported charset %q: %w", charset, err)
	}
	return enc.NewDecoder().Reader(input), nil
}

func decodeHeader(header string) string {
	decoded, err := wordDecoder.DecodeHeader(header)
	if err != nil {
		return header
	}
	return decoded
}

// htmlText extracts readable text, skipping scripts and styles
func htmlText(src string) string {
	z := html.NewTokenizer(strings.NewReader(src))
	var b strings.Builder
	skip := 0

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return collapseBlankLines(b.String())
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "script", "style":
				if tt == html.StartTagToken {
					skip++
				}
			case "br", "p", "div", "li", "tr":
				b.WriteString("\n")
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "script", "style":
				if skip > 0 {
					skip--
				}
			case "p", "div":
				b.WriteString("\n")
			}
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		}
	}
}

// replyText keeps the new part of a reply, dropping quoted history and the signature
func replyText(body string) string {
	body = strings.ReplaceAll(body, "\r\n", "\n")
	var kept []string
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "--" || quoteStart.MatchString(trimmed) {
			break
		}
		if strings.HasPrefix(trimmed, ">") {
			continue
		}
		kept = append(kept, strings.TrimRight(line, " \t"))
	}
	return collapseBlankLines(strings.Join(kept, "\n"))
}

func collapseBlankLines(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))
	blank := 0
	for _, line := range lines {
		line = strings.TrimRight(line, " \t\u00a0")
		if strings.TrimSpace(line) == "" {
			blank++
			if blank > 1 {
				continue
			}
		} else {
			blank = 0
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
