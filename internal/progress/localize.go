package progress

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"

	"genlux/internal/domain"
)

// Message keys double as the English text.
const (
	msgStarting         = "Starting video generation..."
	msgPolling          = "Your request is in the queue. Polling for updates..."
	msgExtending        = "Extending video... (%d/%d)"
	msgPollingExtension = "Polling for extension %d..."
	msgFetching         = "Fetching final video..."
	msgDone             = "Video ready."
	msgQueued           = "Waiting for a worker..."
)

var messages = buildCatalog()

func buildCatalog() catalog.Catalog {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for _, key := range []string{msgStarting, msgPolling, msgExtending, msgPollingExtension, msgFetching, msgDone, msgQueued} {
		_ = b.SetString(language.English, key, key)
	}
	id := map[string]string{
		msgStarting:         "Memulai pembuatan video...",
		msgPolling:          "Permintaan Anda sedang dalam antrean. Memeriksa pembaruan...",
		msgExtending:        "Memperpanjang video... (%d/%d)",
		msgPollingExtension: "Memeriksa perpanjangan %d...",
		msgFetching:         "Mengambil video akhir...",
		msgDone:             "Video siap.",
		msgQueued:           "Menunggu giliran diproses...",
	}
	for key, text := range id {
		_ = b.SetString(language.Indonesian, key, text)
	}
	return b
}

// Localize renders a progress message in locale ("en", "id", or any BCP 47
// tag). Unknown stages keep their stored message.
func Localize(locale string, status domain.JobStatus, p domain.JobProgress) string {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.English
	}
	printer := message.NewPrinter(tag, message.Catalog(messages))

	switch p.Stage {
	case "starting":
		return printer.Sprintf(msgStarting)
	case "polling":
		return printer.Sprintf(msgPolling)
	case "extending":
		return printer.Sprintf(msgExtending, p.Step, p.Total)
	case "polling_extension":
		return printer.Sprintf(msgPollingExtension, p.Step)
	case "fetching":
		return printer.Sprintf(msgFetching)
	case "done":
		return printer.Sprintf(msgDone)
	case "":
		if status == domain.JobStatusQueued {
			return printer.Sprintf(msgQueued)
		}
		if status == domain.JobStatusSucceeded {
			return printer.Sprintf(msgDone)
		}
	}
	return p.Message
}
