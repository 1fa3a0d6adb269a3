package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"net/smtp"
	"strings"
)

// EmailNotifier sends price-drop alerts over SMTP with implicit TLS
// (port 465 style), as a multipart plain+HTML mail.
type EmailNotifier struct {
	host     string
	port     int
	sender   string
	password string
	receiver string
}

func NewEmailNotifier(host string, port int, sender, password, receiver string) *EmailNotifier {
	return &EmailNotifier{
		host:     host,
		port:     port,
		sender:   sender,
		password: password,
		receiver: receiver,
	}
}

func (e *EmailNotifier) Notify(_ context.Context, p Payload) error {
	if len(p.Events) == 0 {
		return nil
	}
	if e.sender == "" || e.password == "" {
		log.Println("Email credentials not configured, skipping email alert")
		return nil
	}

	subject := fmt.Sprintf("🔔 Price Drop Alert: %s", p.Events[0].Product)
	if len(p.Events) > 1 {
		subject = fmt.Sprintf("🔔 Price Drop Alert: %d products", len(p.Events))
	}

	msg := e.buildMessage(subject, plainBody(p), htmlBody(p))
	if err := e.send(msg); err != nil {
		return fmt.Errorf("email send: %w", err)
	}
	log.Printf("Email alert sent to %s", e.receiver)
	return nil
}

// send dials with implicit TLS and speaks SMTP by hand; smtp.SendMail only
// supports STARTTLS.
func (e *EmailNotifier) send(msg []byte) error {
	addr := fmt.Sprintf("%s:%d", e.host, e.port)
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: e.host})
	if err != nil {
		return err
	}

	client, err := smtp.NewClient(conn, e.host)
	if err != nil {
		conn.Close()
		return err
	}
	defer client.Close()

	auth := smtp.PlainAuth("", e.sender, e.password, e.host)
	if err := client.Auth(auth); err != nil {
		return err
	}
	if err := client.Mail(e.sender); err != nil {
		return err
	}
	if err := client.Rcpt(e.receiver); err != nil {
		return err
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}

func (e *EmailNotifier) buildMessage(subject, plain, html string) []byte {
	const boundary = "price-tracker-alert"
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", e.sender)
	fmt.Fprintf(&b, "To: %s\r\n", e.receiver)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", boundary)

	fmt.Fprintf(&b, "--%s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n", boundary, plain)
	fmt.Fprintf(&b, "--%s\r\nContent-Type: text/html; charset=utf-8\r\n\r\n%s\r\n", boundary, html)
	fmt.Fprintf(&b, "--%s--\r\n", boundary)
	return []byte(b.String())
}

func plainBody(p Payload) string {
	var b strings.Builder
	b.WriteString("Price Drop Alert!\n\n")
	for _, e := range p.Events {
		fmt.Fprintf(&b, "Product: %s\nSite: %s\n", e.Product, e.Site)
		if e.Drop > 0 {
			fmt.Fprintf(&b, "Previous Price: $%.2f\nCurrent Price: $%.2f\nSavings: $%.2f (%.1f%% off)\n",
				e.PreviousPrice, e.NewPrice, e.Drop, e.DropPercent)
		} else {
			fmt.Fprintf(&b, "Current Price: $%.2f\n", e.NewPrice)
		}
		if e.TargetReached {
			b.WriteString("Target price reached!\n")
		}
		fmt.Fprintf(&b, "Link: %s\n\n", e.URL)
	}
	fmt.Fprintf(&b, "Run %s finished at %s: %d snapshot(s), %d failure(s)\n",
		p.RunID, p.FinishedAt.Format("2006-01-02 15:04:05"), p.Snapshots, p.Failures)
	return b.String()
}

func htmlBody(p Payload) string {
	var rows strings.Builder
	for _, e := range p.Events {
		price := fmt.Sprintf("$%.2f", e.NewPrice)
		was := ""
		saving := ""
		if e.Drop > 0 {
			was = fmt.Sprintf("<s>$%.2f</s>", e.PreviousPrice)
			saving = fmt.Sprintf("$%.2f (%.1f%%)", e.Drop, e.DropPercent)
		}
		target := ""
		if e.TargetReached {
			target = "🎯"
		}
		fmt.Fprintf(&rows, `<tr>
<td style="padding:8px;border-bottom:1px solid #dee2e6;"><a href=%q>%s</a> %s</td>
<td style="padding:8px;border-bottom:1px solid #dee2e6;">%s</td>
<td style="padding:8px;border-bottom:1px solid #dee2e6;">%s</td>
<td style="padding:8px;border-bottom:1px solid #dee2e6;color:#28a745;font-weight:bold;">%s</td>
<td style="padding:8px;border-bottom:1px solid #dee2e6;">%s</td>
</tr>`, e.URL, escapeHTML(e.Product), target, escapeHTML(e.Site), was, price, saving)
	}

	return fmt.Sprintf(`<html><body style="font-family:Arial,sans-serif;">
<h2>🔔 Price Drop Alert</h2>
<table style="border-collapse:collapse;">
<thead><tr>
<th style="text-align:left;padding:8px;">Product</th>
<th style="text-align:left;padding:8px;">Site</th>
<th style="text-align:left;padding:8px;">Was</th>
<th style="text-align:left;padding:8px;">Now</th>
<th style="text-align:left;padding:8px;">Savings</th>
</tr></thead>
<tbody>%s</tbody>
</table>
<p style="color:#6c757d;font-size:12px;">Run %s: %d snapshot(s), %d failure(s). Prices may change at any time.</p>
</body></html>`, rows.String(), p.RunID, p.Snapshots, p.Failures)
}
