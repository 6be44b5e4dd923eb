package e2e

import "fmt"

// serviceSection builds the common service block used in e2e documents.
// Params: HTTP port, log file path and NATS ingest settings.
// Returns: TOML prefix.
func serviceSection(port int, logPath string, natsURL string) string {
	natsEnabled := natsURL != ""
	if natsURL == "" {
		natsURL = "nats://127.0.0.1:4222"
	}
	return fmt.Sprintf(`
[service]
listen = "127.0.0.1:%d"
sweep_every = 10

[service.log.file]
enabled = true
level = "info"
format = "json"
path = %q

[service.nats]
enabled = %t
url = [%q]
subject = "pokemongo.webhooks"
stream = "POKEMONGO_E2E"
durable = "notifier-e2e"
queue = "notifier-e2e"
`, port, logPath, natsEnabled, natsURL)
}

// discordRules routes every creature and level-5 raid to one discord hook.
func discordRules(hookURL string) string {
	return fmt.Sprintf(`
[endpoints.hook]
type = "discord"
url = %q
username = "Notifier"

[endpoints.hook.retry]
attempts = 2
delay_ms = 10

[includes.all]

[[includes.all.pokemons]]
min_id = 0
max_id = 999

[raid_includes.legendary]
levels = [5]

[notification_settings.Me]
includes = ["all"]
raids = ["legendary"]
endpoints = ["hook"]
`, hookURL)
}

// logRules routes every creature to the built-in log channel.
const logRules = `
[includes.default]

[[includes.default.pokemons]]
min_id = 0
max_id = 999

[notification_settings.Default]
includes = ["default"]
`
