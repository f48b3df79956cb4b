package fints

import (
	"regexp"
	"strings"

	"github.com/evgeny-myasishchev/ledger.fints-fetcher/pkg/banks/fints/message"
)

const (
	noRefOrder     = "noref"
	noChallengeMsg = "nochallenge"
)

// HITANS layouts differ between banks, so methods are picked by a best effort
// scan for "id:2:technical:zka name:zka version:name" tuples
var tanMethodRegexp = regexp.MustCompile(`(?:^|:)(9\d{2}):2:([^:]*):([^:]*):([^:]*):([^:]+)`)

func parseTanMethods(res *message.Response) ([]TanMethod, bool) {
	var methods []TanMethod
	seen := map[string]bool{}
	for _, seg := range res.FindAll("HITANS") {
		for i := range seg.Elements {
			// items are unescaped before joining, so a ':' inside a method name
			// shifts the tuple and that method is read wrong
			for _, match := range tanMethodRegexp.FindAllStringSubmatch(seg.JoinElement(i), -1) {
				if seen[match[1]] {
					continue
				}
				seen[match[1]] = true
				method := TanMethod{
					ID:            match[1],
					TechnicalName: match[2],
					Name:          match[5],
					Version:       seg.Version,
				}
				method.Decoupled = method.IsDecoupled() || strings.Contains(strings.ToUpper(match[3]), "DECOUPLED")
				methods = append(methods, method)
			}
		}
	}
	return methods, len(methods) > 0
}

func parseAllowedMethods(res *message.Response) ([]string, bool) {
	var ids []string
	for _, code := range res.Codes() {
		if code.Code == message.CodeAllowedTanMethods {
			ids = append(ids, code.Params...)
		}
	}
	return ids, len(ids) > 0
}

type hitan struct {
	process   string
	orderRef  string
	challenge string
}

// parseChallenge returns an active challenge. "noref" and "nochallenge"
// markers mean no TAN is needed
func parseChallenge(res *message.Response) (hitan, bool) {
	seg, ok := res.Find("HITAN")
	if !ok {
		return hitan{}, false
	}
	h := hitan{
		process:   seg.Item(0, 0),
		orderRef:  seg.Item(2, 0),
		challenge: seg.Item(3, 0),
	}
	if h.orderRef == "" || h.orderRef == noRefOrder || h.challenge == noChallengeMsg {
		return hitan{}, false
	}
	return h, true
}

func parseSystemID(res *message.Response) (string, bool) {
	seg, ok := res.Find("HISYN")
	if !ok || seg.Item(0, 0) == "" {
		return "", false
	}
	return seg.Item(0, 0), true
}

func parseUPDAccounts(res *message.Response) ([]Account, bool) {
	var accounts []Account
	for _, seg := range res.FindAll("HIUPD") {
		account := Account{
			AccountNumber: seg.Item(0, 0),
			BankCode:      seg.Item(0, 3),
			IBAN:          seg.Item(1, 0),
			AccountType:   seg.Item(3, 0),
			Currency:      seg.Item(4, 0),
			OwnerName:     seg.Item(5, 0),
		}
		if account.AccountNumber == "" && account.IBAN == "" {
			continue
		}
		accounts = append(accounts, account)
	}
	return accounts, len(accounts) > 0
}

func parseSEPAAccounts(res *message.Response) ([]Account, bool) {
	var accounts []Account
	for _, seg := range res.FindAll("HISPA") {
		for _, el := range seg.Elements {
			if len(el) < 4 || el[1] == "" {
				continue
			}
			account := Account{IBAN: el[1], BIC: el[2], AccountNumber: el[3]}
			if len(el) > 6 {
				account.BankCode = el[6]
			}
			accounts = append(accounts, account)
		}
	}
	return accounts, len(accounts) > 0
}

type statementPage struct {
	booked  []byte
	pending []byte
}

func parseStatementPage(res *message.Response) (statementPage, bool) {
	seg, ok := res.Find("HIKAZ")
	if !ok {
		return statementPage{}, false
	}
	return statementPage{
		booked:  []byte(seg.Item(0, 0)),
		pending: []byte(seg.Item(1, 0)),
	}, true
}

// mergeAccounts enriches user data accounts with SEPA details
func mergeAccounts(known []Account, sepa []Account) []Account {
	result := append([]Account(nil), known...)
	for _, s := range sepa {
		matched := false
		for i := range result {
			if (s.IBAN != "" && result[i].IBAN == s.IBAN) ||
				(s.AccountNumber != "" && result[i].AccountNumber == s.AccountNumber) {
				if result[i].IBAN == "" {
					result[i].IBAN = s.IBAN
				}
				if result[i].BIC == "" {
					result[i].BIC = s.BIC
				}
				if result[i].BankCode == "" {
					result[i].BankCode = s.BankCode
				}
				matched = true
				break
			}
		}
		if !matched {
			result = append(result, s)
		}
	}
	return result
}
