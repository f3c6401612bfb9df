package util

import (
	"github.com/miekg/dns"
)

// GetEdns0Record returns the OPT record of the given message or nil
func GetEdns0Record(msg *dns.Msg) *dns.OPT {
	if msg == nil {
		return nil
	}

	return msg.IsEdns0()
}

// Edns0OptionCodes lists the option codes present in the OPT record,
// in the order they appear on the wire
func Edns0OptionCodes(msg *dns.Msg) []uint16 {
	opt := GetEdns0Record(msg)
	if opt == nil {
		return nil
	}

	codes := make([]uint16, 0, len(opt.Option))
	for _, o := range opt.Option {
		codes = append(codes, o.Option())
	}

	return codes
}
