package repo

import "fmt"

// Queries holds the PromQL expressions for the three monitored signals.
// CPU is rate-converted by the query itself, memory is an absolute byte
// gauge, and restarts stay a raw cumulative counter.
type Queries struct {
	CPU      string
	Memory   string
	Restarts string
}

// BuildQueries renders the signal expressions with the namespace filter.
func BuildQueries(namespaceRegex string) Queries {
	nsFilter := fmt.Sprintf(`,namespace=~%q`, namespaceRegex)
	return Queries{
		CPU:      fmt.Sprintf(`rate(container_cpu_usage_seconds_total{container!="",container!="POD"%s}[1m])`, nsFilter),
		Memory:   fmt.Sprintf(`container_memory_usage_bytes{container!="",container!="POD"%s}`, nsFilter),
		Restarts: fmt.Sprintf(`kube_pod_container_status_restarts_total{namespace=~%q}`, namespaceRegex),
	}
}
