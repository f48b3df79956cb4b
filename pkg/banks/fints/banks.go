package fints

// Well known FinTS PIN/TAN endpoints by bank code
var knownBanks = map[string]string{
	"12030000": "https://banking-dkb.s-fints-pt-dkb.de/fints30",
	"50010517": "https://fints.ing.de/fints/",
	"43060967": "https://hbci-pintan.gad.de/cgi-bin/hbciservlet",
	"10010010": "https://hbci.postbank.de/banking/hbci.do",
	"20041133": "https://fints.comdirect.de/fints",
	"76030080": "https://brokerage-hbci.consorsbank.de/hbci",
	"70150000": "https://banking-by1.s-fints-pt-by.de/fints30",
	"10050000": "https://banking-be3.s-fints-pt-be.de/fints30",
	"50070010": "https://fints.deutsche-bank.de/",
}

// LookupBankURL returns a FinTS endpoint of a well known bank
func LookupBankURL(bankCode string) (string, bool) {
	url, ok := knownBanks[bankCode]
	return url, ok
}
