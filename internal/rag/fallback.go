package rag

import (
	"fmt"
	"regexp"
	"strings"
)

// Fixed phrases returned when the pipeline cannot do better. The assistant
// speaks French to Sotradis customers, so the canned answers do too.
const (
	noInfoMessage  = "Je n'ai pas trouvé d'information pour cette demande."
	apologyMessage = "Désolé, une erreur est survenue lors de la recherche d'informations."
)

// fallbackIntent is one entry of the keyword-matched query table used when
// the generated-query path fails. Intents are tried in order and the first
// keyword hit wins.
type fallbackIntent struct {
	source   string
	keywords []string
	entity   *regexp.Regexp
	query    string
	format   func(rows []map[string]interface{}) string
	empty    string
}

var fallbackIntents = []fallbackIntent{
	{
		source:   "ArticleCiments",
		keywords: []string{"ciment", "prix", "tarif", "article", "produit", "stock", "disponible"},
		entity:   regexp.MustCompile(`(?i)(?:ciment|produit|article)\s+(?:de\s+|du\s+|d'\s*)?([\pL0-9][\pL0-9' \-]*?)\s*[?.!]*\s*$`),
		query: `SELECT nom, prix_unitaire, disponible FROM ArticleCiments
			WHERE nom LIKE @motif ORDER BY nom LIMIT 10`,
		format: formatArticles,
		empty:  "Aucun article trouvé dans le catalogue.",
	},
	{
		source:   "clients",
		keywords: []string{"client", "solde"},
		entity:   regexp.MustCompile(`(?i)client\s+([\pL0-9][\pL0-9' \-]*?)\s*[?.!]*\s*$`),
		query: `SELECT c.nom, c.ville, COALESCE(SUM(f.montant_total), 0) AS total_facture
			FROM clients c LEFT JOIN factures f ON f.client_id = c.id
			WHERE c.nom LIKE @motif
			GROUP BY c.id, c.nom, c.ville ORDER BY c.nom LIMIT 10`,
		format: formatClients,
		empty:  "Aucun client trouvé.",
	},
	{
		source:   "factures",
		keywords: []string{"facture", "paiement", "impayé", "règlement", "reglement"},
		entity:   regexp.MustCompile(`(?i)facture\s+(?:numéro\s+|n[°o]\s*)?([\pL0-9][\pL0-9\-/]*)\s*[?.!]*\s*$`),
		query: `SELECT f.numero, f.date_emission, f.montant_total, f.statut, c.nom AS client
			FROM factures f JOIN clients c ON c.id = f.client_id
			WHERE f.numero LIKE @motif OR c.nom LIKE @motif
			ORDER BY f.date_emission DESC LIMIT 10`,
		format: formatFactures,
		empty:  "Aucune facture trouvée.",
	},
	{
		source:   "regions",
		keywords: []string{"région", "region", "zone"},
		entity:   regexp.MustCompile(`(?i)(?:région|region|zone)\s+(?:de\s+|du\s+|d'\s*)?([\pL][\pL' \-]*?)\s*[?.!]*\s*$`),
		query: `SELECT nom, pays FROM regions
			WHERE nom LIKE @motif ORDER BY nom LIMIT 10`,
		format: formatRegions,
		empty:  "Aucune région trouvée.",
	},
}

// matchIntent finds the first intent whose keywords appear in the question
// and extracts the trailing entity when the question carries one.
func matchIntent(question string) (*fallbackIntent, string) {
	lower := strings.ToLower(question)
	for i := range fallbackIntents {
		intent := &fallbackIntents[i]
		for _, kw := range intent.keywords {
			if !strings.Contains(lower, kw) {
				continue
			}
			entity := ""
			if m := intent.entity.FindStringSubmatch(question); m != nil {
				entity = strings.TrimSpace(m[1])
			}
			return intent, entity
		}
	}
	return nil, ""
}

func field(row map[string]interface{}, key string) string {
	v, ok := row[key]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}

func formatArticles(rows []map[string]interface{}) string {
	parts := make([]string, 0, len(rows))
	for _, row := range rows {
		dispo := "indisponible actuellement"
		switch field(row, "disponible") {
		case "1", "true":
			dispo = "disponible en stock"
		}
		parts = append(parts, fmt.Sprintf("%s à %s dirhams, %s",
			field(row, "nom"), field(row, "prix_unitaire"), dispo))
	}
	return "Articles trouvés : " + strings.Join(parts, " ; ") + "."
}

func formatClients(rows []map[string]interface{}) string {
	parts := make([]string, 0, len(rows))
	for _, row := range rows {
		parts = append(parts, fmt.Sprintf("%s (%s), total facturé %s dirhams",
			field(row, "nom"), field(row, "ville"), field(row, "total_facture")))
	}
	return "Clients : " + strings.Join(parts, " ; ") + "."
}

func formatFactures(rows []map[string]interface{}) string {
	parts := make([]string, 0, len(rows))
	for _, row := range rows {
		parts = append(parts, fmt.Sprintf("%s du %s, %s dirhams, statut %s, client %s",
			field(row, "numero"), field(row, "date_emission"),
			field(row, "montant_total"), field(row, "statut"), field(row, "client")))
	}
	return "Factures : " + strings.Join(parts, " ; ") + "."
}

func formatRegions(rows []map[string]interface{}) string {
	parts := make([]string, 0, len(rows))
	for _, row := range rows {
		parts = append(parts, fmt.Sprintf("%s (%s)", field(row, "nom"), field(row, "pays")))
	}
	return "Régions couvertes : " + strings.Join(parts, " ; ") + "."
}
