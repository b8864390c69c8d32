package rules

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/publicsuffix"

	"github.com/HanTheDev/phish-guard/internal/models"
)

// Rule is one heuristic. Reason doubles as the rule's identity and must be
// unique within an engine.
type Rule struct {
	Reason   string
	Severity models.Severity
	match    func(content string) []string
}

// Match returns the matched text of every occurrence of the rule in content.
func (r Rule) Match(content string) []string {
	return r.match(content)
}

const (
	ReasonKoreanSenderForeignLink = "Sender uses a Korean domain but links point to a foreign domain"
	ReasonPublicWebmailSender     = "Sent from a public webmail account while posing as official business mail"
	ReasonFinancialShortURL       = "Shortened URL used alongside financial content"
	ReasonForeignFormAction       = "HTML form submits to a foreign domain"
	ReasonUrgencyLanguage         = "Suspicious language creating a false sense of urgency"
	ReasonFreeDomain              = "Link uses a free or low-reputation domain"
	ReasonCredentialParameter     = "URL carries a sensitive credential parameter"
)

var (
	koreanSenderRe   = regexp.MustCompile(`(?i)from:[^\n]*?@([a-z0-9가-힣.\-]+)`)
	linkRe           = regexp.MustCompile(`(?i)https?://[^\s"'<>]+`)
	publicWebmailRe  = regexp.MustCompile(`(?i)from:.*@(?:gmail|naver|daum|kakao|yahoo|hotmail|outlook)\.com`)
	financialShortRe = regexp.MustCompile(`(?i)(?:은행|카드|결제|송금|계좌|입금|출금|환불|bank|payment|transfer|refund).*(?:bit\.ly|tinyurl|short\.link|t\.co)`)
	formActionRe     = regexp.MustCompile(`(?i)<form[^>]+action\s*=\s*["'](https?://[^"']*)["']`)
	urgencyRe        = regexp.MustCompile(`(?i)(?:긴급|즉시|오늘까지|24시간|마감|제한시간|차단|정지|만료|취소|urgent|immediately|expires?|suspended|cancell?ed|within 24 hours)`)
	urlHostRe        = regexp.MustCompile(`(?i)https?://[^/\s"'<>?#]+`)
	credentialRe     = regexp.MustCompile(`(?i)[?&](?:user|login|password|card|account|bank)=`)
)

var freeSuffixes = []string{"tk", "ml", "ga", "cf", "gq", "pp.ua"}

// DefaultRules returns the fixed, ordered product rule set.
func DefaultRules() []Rule {
	return []Rule{
		{
			Reason:   ReasonKoreanSenderForeignLink,
			Severity: models.SeverityHigh,
			match:    matchKoreanSenderForeignLink,
		},
		regexRule(publicWebmailRe, ReasonPublicWebmailSender, models.SeverityMedium),
		regexRule(financialShortRe, ReasonFinancialShortURL, models.SeverityHigh),
		{
			Reason:   ReasonForeignFormAction,
			Severity: models.SeverityHigh,
			match:    matchForeignFormAction,
		},
		regexRule(urgencyRe, ReasonUrgencyLanguage, models.SeverityMedium),
		{
			Reason:   ReasonFreeDomain,
			Severity: models.SeverityHigh,
			match:    matchFreeDomain,
		},
		regexRule(credentialRe, ReasonCredentialParameter, models.SeverityHigh),
	}
}

func regexRule(re *regexp.Regexp, reason string, severity models.Severity) Rule {
	return Rule{
		Reason:   reason,
		Severity: severity,
		match: func(content string) []string {
			return re.FindAllString(content, -1)
		},
	}
}

// One finding per Korean sender header: the first link after it whose host
// is not Korean.
func matchKoreanSenderForeignLink(content string) []string {
	var out []string
	for _, loc := range koreanSenderRe.FindAllStringSubmatchIndex(content, -1) {
		domain := content[loc[2]:loc[3]]
		if !IsKoreanHost(domain) {
			continue
		}
		for _, link := range linkRe.FindAllString(content[loc[1]:], -1) {
			host := hostOf(link)
			if host != "" && !IsKoreanHost(host) {
				out = append(out, link)
				break
			}
		}
	}
	return out
}

func matchForeignFormAction(content string) []string {
	var out []string
	for _, m := range formActionRe.FindAllStringSubmatch(content, -1) {
		host := hostOf(m[1])
		if host != "" && !IsKoreanHost(host) {
			out = append(out, m[0])
		}
	}
	return out
}

func matchFreeDomain(content string) []string {
	var out []string
	for _, m := range urlHostRe.FindAllString(content, -1) {
		if hasFreeSuffix(hostOf(m)) {
			out = append(out, m)
		}
	}
	return out
}

// IsKoreanHost reports whether host sits under the .kr or .한국 country domains.
func IsKoreanHost(host string) bool {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if host == "" {
		return false
	}
	suffix, _ := publicsuffix.PublicSuffix(host)
	tld := suffix[strings.LastIndex(suffix, ".")+1:]
	return tld == "kr" || tld == "한국" || tld == "xn--3e0b707e"
}

func hasFreeSuffix(host string) bool {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if host == "" {
		return false
	}
	for _, s := range freeSuffixes {
		if host == s || strings.HasSuffix(host, "."+s) {
			return true
		}
	}
	return false
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
