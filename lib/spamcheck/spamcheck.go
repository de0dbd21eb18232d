// Package spamcheck defines types describing requests made to a spam check service and their results.
package spamcheck

import (
	"fmt"
	"time"
)

// Request describes what was sent to the service.
type Request struct {
	Op      string            `json:"op"`      // operation, i.e. "comment-check" or "submit-spam"
	Website string            `json:"website"` // site the comment belongs to
	Fields  map[string]string `json:"fields"`  // submission record as sent
}

// Response is a result of the operation.
type Response struct {
	Name     string `json:"name"`     // name of the service
	Spam     bool   `json:"spam"`     // true if the comment classified (or reported) as spam
	Accepted bool   `json:"accepted"` // true if a submission acknowledged by the service
	Details  string `json:"details"`  // details of the check
	Error    error  `json:"-"`        // error message, if any. Do not serialize it
}

// Entry is a request with its response, kept in history.
type Entry struct {
	Request  Request   `json:"request"`
	Response Response  `json:"response"`
	Time     time.Time `json:"time"`
}

func (r *Request) String() string {
	return fmt.Sprintf("op:%s, site:%s, ip:%s, author:%q, content:%q",
		r.Op, r.Website, r.Fields["user_ip"], r.Fields["comment_author"], r.Fields["comment_content"])
}

func (r *Response) String() string {
	spamOrHam := "ham"
	if r.Spam {
		spamOrHam = "spam"
	}
	if r.Error != nil {
		return fmt.Sprintf("%s: error, %v", r.Name, r.Error)
	}
	return fmt.Sprintf("%s: %s, %s", r.Name, spamOrHam, r.Details)
}
