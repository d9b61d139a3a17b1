package channel

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const plainReply = "From: Ivan Petrov <Ivan@Example.KZ>\r\n" +
	"To: support@helpdesk.local\r\n" +
	"Subject: =?UTF-8?B?0J3QtdGCINC40L3RgtC10YDQvdC10YLQsA==?=\r\n" +
	"Message-ID: <m2@example.kz>\r\n" +
	"In-Reply-To: <m1@example.kz>\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Со вчера не работает.\r\n" +
	"\r\n" +
	"On Mon, 2 Mar 2026 at 10:00, Help Desk <support@helpdesk.local> wrote:\r\n" +
	"> Опишите проблему подробнее\r\n"

const multipartMessage = "From: aliya@example.kz\r\n" +
	"Subject: Router\r\n" +
	"Message-ID: <m3@example.kz>\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/mixed; boundary=outer\r\n" +
	"\r\n" +
	"--outer\r\n" +
	"Content-Type: multipart/alternative; boundary=inner\r\n" +
	"\r\n" +
	"--inner\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"Content-Transfer-Encoding: quoted-printable\r\n" +
	"\r\n" +
	"=D0=A0=D0=BE=D1=83=D1=82=D0=B5=D1=80 =D0=BC=D0=B8=D0=B3=D0=B0=D0=B5=D1=82 =\r\n" +
	"=D0=BA=D1=80=D0=B0=D1=81=D0=BD=D1=8B=D0=BC.\r\n" +
	"--\r\n" +
	"Aliya\r\n" +
	"--inner\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"\r\n" +
	"<p>HTML copy</p>\r\n" +
	"--inner--\r\n" +
	"--outer\r\n" +
	"Content-Type: text/plain\r\n" +
	"Content-Disposition: attachment; filename=log.txt\r\n" +
	"\r\n" +
	"attached log\r\n" +
	"--outer--\r\n"

const htmlMessage = "From: bolat@example.kz\r\n" +
	"Subject: Wi-Fi\r\n" +
	"Content-Type: text/html; charset=windows-1251\r\n" +
	"Content-Transfer-Encoding: base64\r\n" +
	"\r\n" +
	"PGh0bWw+PGhlYWQ+PHN0eWxlPnB7Y29sb3I6cmVkfTwvc3R5bGU+PC9oZWFkPjxib2R5PjxwPtDu8/Ll8CDs6OPg5fI8L3A+PHNjcmlwdD50cmFjaygpPC9zY3JpcHQ+PC9ib2R5PjwvaHRtbD4=\r\n"

func TestParseEmail(t *testing.T) {
	t.Run("plain reply drops quoted history", func(t *testing.T) {
		msg, err := ParseEmail(strings.NewReader(plainReply))
		require.NoError(t, err)

		assert.Equal(t, "ivan@example.kz", msg.From)
		assert.Equal(t, "Ivan Petrov", msg.FromName)
		assert.Equal(t, "Нет интернета", msg.Subject)
		assert.Equal(t, "<m2@example.kz>", msg.MessageID)
		assert.Equal(t, "<m1@example.kz>", msg.References)
		assert.Equal(t, "Со вчера не работает.", msg.Body)
		assert.False(t, msg.AutoSubmitted)
	})

	t.Run("multipart prefers plain text and skips attachments", func(t *testing.T) {
		msg, err := ParseEmail(strings.NewReader(multipartMessage))
		require.NoError(t, err)
		assert.Equal(t, "Роутер мигает красным.", msg.Body)
	})

	t.Run("html body in a legacy charset", func(t *testing.T) {
		msg, err := ParseEmail(strings.NewReader(htmlMessage))
		require.NoError(t, err)
		assert.Equal(t, "Роутер мигает", msg.Body)
	})

	t.Run("missing sender", func(t *testing.T) {
		_, err := ParseEmail(strings.NewReader("Subject: hello\r\n\r\nbody\r\n"))
		assert.ErrorIs(t, err, ErrNoSender)
	})
}

func TestParseEmail_AutoSubmitted(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   bool
	}{
		{name: "vacation reply", header: "Auto-Submitted: auto-replied", want: true},
		{name: "explicit no", header: "Auto-Submitted: no"},
		{name: "bulk precedence", header: "Precedence: bulk", want: true},
		{name: "mailing list", header: "List-Id: <news.example.kz>", want: true},
		{name: "exchange autoreply", header: "X-Autoreply: yes", want: true},
		{name: "ordinary mail", header: "X-Mailer: Thunderbird"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := "From: a@example.kz\r\n" + tt.header + "\r\n\r\nТекст\r\n"
			msg, err := ParseEmail(strings.NewReader(raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, msg.AutoSubmitted)
		})
	}
}

func TestReplyText(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "russian quote header", body: "Спасибо, помогло\n\n2 марта 2026 г., Поддержка пишет:\nстарый текст", want: "Спасибо, помогло"},
		{name: "outlook separator", body: "Не помогло\n-----Original Message-----\nFrom: desk", want: "Не помогло"},
		{name: "inline quotes are skipped", body: "> вопрос\nответ\n> ещё\nпродолжение", want: "ответ\nпродолжение"},
		{name: "blank runs collapse", body: "один\n\n\n\nдва  \n", want: "один\n\nдва"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, replyText(tt.body))
		})
	}
}

type sentReply struct {
	to, subject, body, inReplyTo, references string
}

type fakeReplySender struct {
	mu      sync.Mutex
	replies []sentReply
}

func (f *fakeReplySender) SendReply(to, subject, body, inReplyTo, references string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, sentReply{to, subject, body, inReplyTo, references})
	return nil
}

func (f *fakeReplySender) sent() []sentReply {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentReply(nil), f.replies...)
}

func newTestEmail(cfg EmailConfig, answer string) (*EmailChannel, *fakeClassifier, *fakeReplySender) {
	fake := &fakeClassifier{answer: answer}
	conversation, _ := newTestConversation(fake)
	sender := &fakeReplySender{}
	if cfg.Mailbox == "" {
		cfg.Mailbox = "support@helpdesk.local"
	}
	return NewEmail(cfg, sender, conversation, zerolog.Nop()), fake, sender
}

func TestEmailChannel_Accept(t *testing.T) {
	channel, fake, sender := newTestEmail(EmailConfig{}, "Перезагрузите роутер.")
	msg, err := ParseEmail(strings.NewReader(plainReply))
	require.NoError(t, err)
	msg.References = ""

	assert.True(t, channel.Accept(msg))
	require.Eventually(t, func() bool { return len(sender.sent()) == 1 }, time.Second, 5*time.Millisecond)

	assert.Equal(t, sentReply{
		to:         "ivan@example.kz",
		subject:    "Re: Нет интернета",
		body:       "Перезагрузите роутер.",
		inReplyTo:  "<m2@example.kz>",
		references: "<m2@example.kz>",
	}, sender.sent()[0])

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.Len(t, fake.requests, 1)
	assert.Equal(t, "Нет интернета\n\nСо вчера не работает.", fake.requests[0].Message)
	assert.Equal(t, "ivan@example.kz", fake.requests[0].UserID)
	assert.Equal(t, "email", channel.Name())
}

func TestEmailChannel_AcceptSkips(t *testing.T) {
	base := InboundEmail{MessageID: "<x@example.kz>", From: "ivan@example.kz", Subject: "Вопрос", Body: "Текст"}

	tests := []struct {
		name   string
		cfg    EmailConfig
		modify func(m *InboundEmail)
	}{
		{name: "automatic reply", modify: func(m *InboundEmail) { m.AutoSubmitted = true }},
		{name: "own mailbox", modify: func(m *InboundEmail) { m.From = "support@helpdesk.local" }},
		{name: "sender outside allow list", cfg: EmailConfig{AllowFrom: []string{"Aliya@Example.KZ"}}},
		{name: "nothing new in the body", modify: func(m *InboundEmail) { m.Body = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			channel, fake, _ := newTestEmail(tt.cfg, "ok")
			msg := base
			if tt.modify != nil {
				tt.modify(&msg)
			}
			assert.False(t, channel.Accept(&msg))

			fake.mu.Lock()
			defer fake.mu.Unlock()
			assert.Empty(t, fake.requests)
		})
	}

	t.Run("allow list matches any case", func(t *testing.T) {
		channel, _, sender := newTestEmail(EmailConfig{AllowFrom: []string{"Ivan@Example.KZ"}}, "ok")
		msg := base
		assert.True(t, channel.Accept(&msg))
		assert.Eventually(t, func() bool { return len(sender.sent()) == 1 }, time.Second, 5*time.Millisecond)
	})
}

func TestEmailChannel_SkipsRedelivery(t *testing.T) {
	channel, _, sender := newTestEmail(EmailConfig{}, "ok")
	msg := InboundEmail{MessageID: "<dup@example.kz>", From: "ivan@example.kz", Subject: "Re: Вопрос", Body: "Текст"}

	assert.True(t, channel.Accept(&msg))
	again := msg
	assert.False(t, channel.Accept(&again))

	require.Eventually(t, func() bool { return len(sender.sent()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "Re: Вопрос", sender.sent()[0].subject)
}

func webhookRequest(t *testing.T, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, value := range fields {
		require.NoError(t, w.WriteField(name, value))
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/inbound", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestEmailChannel_Webhook(t *testing.T) {
	t.Run("raw message", func(t *testing.T) {
		channel, _, sender := newTestEmail(EmailConfig{}, "Ответ")
		rec := httptest.NewRecorder()

		channel.Handler().ServeHTTP(rec, webhookRequest(t, map[string]string{"email": multipartMessage}))

		assert.Equal(t, http.StatusOK, rec.Code)
		require.Eventually(t, func() bool { return len(sender.sent()) == 1 }, time.Second, 5*time.Millisecond)
		assert.Equal(t, "aliya@example.kz", sender.sent()[0].to)
		assert.Equal(t, "Re: Router", sender.sent()[0].subject)
	})

	t.Run("parsed fields", func(t *testing.T) {
		channel, fake, sender := newTestEmail(EmailConfig{}, "Ответ")
		rec := httptest.NewRecorder()

		channel.Handler().ServeHTTP(rec, webhookRequest(t, map[string]string{
			"headers": "From: Bolat <bolat@example.kz>\nSubject: Wi-Fi\nMessage-ID: <m4@example.kz>\nContent-Type: multipart/alternative; boundary=b\n",
			"html":    "<div>Wi-Fi пропадает</div>",
		}))

		assert.Equal(t, http.StatusOK, rec.Code)
		require.Eventually(t, func() bool { return len(sender.sent()) == 1 }, time.Second, 5*time.Millisecond)
		assert.Equal(t, "<m4@example.kz>", sender.sent()[0].inReplyTo)

		fake.mu.Lock()
		defer fake.mu.Unlock()
		assert.Equal(t, "Wi-Fi\n\nWi-Fi пропадает", fake.requests[0].Message)
	})

	t.Run("message without sender is rejected", func(t *testing.T) {
		channel, _, _ := newTestEmail(EmailConfig{}, "Ответ")
		rec := httptest.NewRecorder()

		channel.Handler().ServeHTTP(rec, webhookRequest(t, map[string]string{"email": "Subject: x\r\n\r\nbody\r\n"}))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("basic auth", func(t *testing.T) {
		channel, _, _ := newTestEmail(EmailConfig{User: "sendgrid", Password: "s3cret"}, "Ответ")

		rec := httptest.NewRecorder()
		channel.Handler().ServeHTTP(rec, webhookRequest(t, map[string]string{"email": plainReply}))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		req := webhookRequest(t, map[string]string{"email": plainReply})
		req.SetBasicAuth("sendgrid", "wrong")
		rec = httptest.NewRecorder()
		channel.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		req = webhookRequest(t, map[string]string{"email": plainReply})
		req.SetBasicAuth("sendgrid", "s3cret")
		rec = httptest.NewRecorder()
		channel.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestReplySubject(t *testing.T) {
	assert.Equal(t, "Re: Нет интернета", replySubject("Нет интернета"))
	assert.Equal(t, "RE: Нет интернета", replySubject("RE: Нет интернета"))
	assert.Equal(t, "Re: "+defaultEmailSubject, replySubject("  "))
}

func TestEmailChannel_StartStop(t *testing.T) {
	channel, _, _ := newTestEmail(EmailConfig{Addr: "127.0.0.1:0"}, "ok")
	require.NoError(t, channel.Start(t.Context()))
	assert.NoError(t, channel.Stop())
}
