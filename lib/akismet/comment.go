package akismet

import "net/url"

// comment fields sent to the service
const (
	FieldBlog                   = "blog"
	FieldUserIP                 = "user_ip"
	FieldUserAgent              = "user_agent"
	FieldReferrer               = "referrer"
	FieldCommentAuthor          = "comment_author"
	FieldCommentAuthorEmail     = "comment_author_email"
	FieldCommentAuthorURL       = "comment_author_url"
	FieldCommentType            = "comment_type"
	FieldCommentContent         = "comment_content"
	FieldPermalink              = "permalink"
	FieldCommentDateGmt         = "comment_date_gmt"
	FieldCommentPostModifiedGmt = "comment_post_modified_gmt"
	FieldBlogLang               = "blog_lang"
	FieldBlogCharset            = "blog_charset"
	FieldUserRole               = "user_role"
	FieldIsTest                 = "is_test"
)

// AllFields lists every field of the submission record, required ones first.
// All of them are sent with each request, unset ones as empty values.
var AllFields = []string{
	FieldBlog, FieldUserIP, FieldUserAgent,
	FieldReferrer, FieldCommentAuthor, FieldCommentAuthorEmail, FieldCommentAuthorURL,
	FieldCommentType, FieldCommentContent, FieldPermalink, FieldCommentDateGmt,
	FieldCommentPostModifiedGmt, FieldBlogLang, FieldBlogCharset, FieldUserRole, FieldIsTest,
}

// SetUserAgent sets user agent of the commenter. Required, defaults to the ambient User-Agent.
func (c *Client) SetUserAgent(userAgent string) *Client { return c.set(FieldUserAgent, userAgent) }

// SetUserIP sets ip address of the commenter. Required, defaults to the ambient client ip.
func (c *Client) SetUserIP(ip string) *Client { return c.set(FieldUserIP, ip) }

// SetReferrer sets the referring page, defaults to the ambient Referer.
func (c *Client) SetReferrer(referrer string) *Client { return c.set(FieldReferrer, referrer) }

// SetPermalink sets the url of the post the comment was submitted to.
func (c *Client) SetPermalink(permalink string) *Client { return c.set(FieldPermalink, permalink) }

// SetCommentType sets the type of the content, i.e. "comment", "forum-post", "reply", "signup".
func (c *Client) SetCommentType(commentType string) *Client {
	return c.set(FieldCommentType, commentType)
}

// SetCommentAuthor sets the name submitted with the comment.
func (c *Client) SetCommentAuthor(author string) *Client { return c.set(FieldCommentAuthor, author) }

// SetCommentAuthorEmail sets the email submitted with the comment.
func (c *Client) SetCommentAuthorEmail(email string) *Client {
	return c.set(FieldCommentAuthorEmail, email)
}

// SetCommentAuthorURL sets the url submitted with the comment.
func (c *Client) SetCommentAuthorURL(authorURL string) *Client {
	return c.set(FieldCommentAuthorURL, authorURL)
}

// SetCommentContent sets the comment body.
func (c *Client) SetCommentContent(content string) *Client {
	return c.set(FieldCommentContent, content)
}

// SetCommentDateGmt sets creation time of the comment, ISO 8601.
// Can be omitted if the comment is checked when it is made.
func (c *Client) SetCommentDateGmt(date string) *Client { return c.set(FieldCommentDateGmt, date) }

// SetCommentPostModifiedGmt sets publication time of the post the comment was made on, ISO 8601.
func (c *Client) SetCommentPostModifiedGmt(date string) *Client {
	return c.set(FieldCommentPostModifiedGmt, date)
}

// SetBlogLang sets comma-separated languages of the site, i.e. "en, fr_ca".
func (c *Client) SetBlogLang(lang string) *Client { return c.set(FieldBlogLang, lang) }

// SetBlogCharset sets charset of the comment_* values, i.e. "UTF-8".
func (c *Client) SetBlogCharset(charset string) *Client { return c.set(FieldBlogCharset, charset) }

// SetUserRole sets the role of the commenter. The service never reports "administrator" as spam.
func (c *Client) SetUserRole(role string) *Client { return c.set(FieldUserRole, role) }

// SetIsTest marks requests as test queries.
func (c *Client) SetIsTest(isTest string) *Client { return c.set(FieldIsTest, isTest) }

// Fields returns a copy of the submission record with every known field, unset ones empty.
func (c *Client) Fields() map[string]string {
	res := make(map[string]string, len(AllFields))
	for _, f := range AllFields {
		res[f] = c.record[f]
	}
	return res
}

func (c *Client) set(field, value string) *Client {
	c.record[field] = value
	return c
}

func (c *Client) values() url.Values {
	res := url.Values{}
	for _, f := range AllFields {
		res.Set(f, c.record[f])
	}
	return res
}
