package privacy

import (
	"fmt"

	"example.com/analytics/internal/domain"
)

// ipParams returns the IP-bearing params of ev. A variant that carries an
// IP address must be listed here; init panics when one is missing.
func ipParams(ev domain.Event) (*domain.EventParams, bool) {
	switch e := ev.(type) {
	case *domain.PageView:
		return &e.EventParams, true
	case *domain.Custom:
		return &e.EventParams, true
	case *domain.Click:
		return &e.EventParams, true
	case *domain.FormSubmit:
		return &e.EventParams, true
	case *domain.ViewItem:
		return &e.EventParams, true
	case *domain.AddToCart:
		return &e.EventParams, true
	case *domain.RemoveFromCart:
		return &e.EventParams, true
	case *domain.BeginCheckout:
		return &e.EventParams, true
	case *domain.Purchase:
		return &e.EventParams, true
	case *domain.Refund:
		return &e.EventParams, true
	case *domain.Search:
		return &e.EventParams, true
	case *domain.VideoStart:
		return &e.EventParams, true
	case *domain.VideoProgress:
		return &e.EventParams, true
	case *domain.VideoComplete:
		return &e.EventParams, true
	case *domain.FileDownload:
		return &e.EventParams, true
	case *domain.Scroll:
		return &e.EventParams, true
	case *domain.SessionStart:
		return &e.EventParams, true
	case *domain.UserEngagement:
		return &e.EventParams, true
	default:
		return nil, false
	}
}

func init() {
	for _, k := range domain.Kinds() {
		ev, _ := domain.New(k)
		if _, ok := ipParams(ev); !ok {
			panic(fmt.Sprintf("privacy: event kind %q has no IP anonymization case", k))
		}
	}
}

// AnonymizeIP masks the IP address carried by ev, if any. A variant missing
// from ipParams is still masked through its shared params.
func AnonymizeIP(ev domain.Event) {
	p, ok := ipParams(ev)
	if !ok {
		p = ev.Params()
	}
	if p == nil || p.IPAddress == "" {
		return
	}
	p.IPAddress = MaskIP(p.IPAddress)
}
