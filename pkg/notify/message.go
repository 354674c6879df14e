package notify

import (
	"bytes"
	"fmt"
	"mime"
	"strings"
	"time"

	"github.com/cuemby/leadercheck/pkg/types"
)

// Message is a composed plain-text alert
type Message struct {
	From    string
	To      []string
	Subject string
	Body    string
	Date    time.Time
}

// SenderAddress builds the From address of an alert about host, e.g.
// leadercheck@wiso-test-01.example.com
func SenderAddress(sender, host, domain string) string {
	if host == "" {
		host = "localhost"
	}
	if domain == "" {
		return sender + "@" + host
	}
	return sender + "@" + host + "." + strings.TrimPrefix(domain, ".")
}

func subjectAndBody(n types.Notification) (string, string) {
	switch n.Kind {
	case types.NotifyLeaderChanged:
		return fmt.Sprintf("Cluster %s leader changed", n.Cluster),
			fmt.Sprintf("Leader of cluster %s changed from %s to %s.\n\nThe expected leader record has been updated.\n",
				n.Cluster, n.OldLeader, n.NewLeader)
	default:
		return fmt.Sprintf("No leader found for cluster %s", n.Cluster),
			fmt.Sprintf("Could not get the current leader of cluster %s from %s.\n\nPlease check the status of the cluster!\n",
				n.Cluster, n.OldLeader)
	}
}

// Bytes renders the message in RFC 5322 wire format with CRLF line endings
func (m *Message) Bytes() []byte {
	var buf bytes.Buffer

	header := func(k, v string) {
		buf.WriteString(k)
		buf.WriteString(": ")
		buf.WriteString(v)
		buf.WriteString("\r\n")
	}

	header("From", m.From)
	header("To", strings.Join(m.To, ", "))
	header("Subject", mime.QEncoding.Encode("utf-8", m.Subject))
	header("Date", m.Date.Format(time.RFC1123Z))
	header("MIME-Version", "1.0")
	header("Content-Type", "text/plain; charset=utf-8")
	header("Content-Transfer-Encoding", "8bit")
	buf.WriteString("\r\n")

	body := strings.ReplaceAll(m.Body, "\r\n", "\n")
	buf.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))

	return buf.Bytes()
}
