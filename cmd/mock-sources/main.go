package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/scholarpipe/harvester/internal/mocksource"
)

func main() {
	addr := defaultString("MOCK_SOURCES_ADDR", ":8090")

	fs := flag.NewFlagSet("mock-sources", flag.ExitOnError)
	fs.StringVar(&addr, "addr", addr, "Listen address")
	pageSize := fs.Int("page-size", 25, "Works API page size")
	_ = fs.Parse(os.Args[1:])

	srv := mocksource.New()
	srv.SetPageSize(*pageSize)
	srv.SetWorks(sampleWorks())
	srv.SetItems(sampleItems())

	_, _ = fmt.Fprintf(os.Stdout, "mock-sources listening on %s (works=/works listing=/repository/recent-submissions)\n", addr)
	if err := http.ListenAndServe(addr, srv.Handler()); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func sampleWorks() []mocksource.Work {
	return []mocksource.Work{
		{
			Title:    "Urban Health Outcomes in East Africa",
			Authors:  []string{"A. Wanjiru", "D. Otieno"},
			Date:     "2023-05-11",
			Abstract: "A longitudinal study of urban health outcomes.",
			DOI:      "10.1234/uhea.2023.001",
			URL:      "https://example.org/works/uhea-2023-001",
			Journal:  "Journal of Urban Health",
			Cited:    14,
		},
		{
			Title:   "Nutrition Interventions for School-Age Children",
			Authors: []string{"B. Mwangi"},
			Date:    "2022-11-02",
			DOI:     "10.1234/nisc.2022.007",
			URL:     "https://example.org/works/nisc-2022-007",
			Cited:   3,
		},
	}
}

func sampleItems() []mocksource.Item {
	return []mocksource.Item{
		{
			Title:   "Urban Health Outcomes in East Africa",
			Authors: "Wanjiru, A.; Otieno, D.",
			Date:    "2023-05-11",
			Href:    "/handle/123456789/101",
		},
		{
			Title:   "Community Water Access Survey Report",
			Authors: "Njeri, C.",
			Date:    "2024-01-19",
			Href:    "/handle/123456789/102",
		},
	}
}

func defaultString(envVar string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(envVar))
	if v == "" {
		return fallback
	}
	return v
}
