package classifier

import (
	"fmt"
	"strings"

	"leadflow/internal/models"
)

func systemPrompt() string {
	intents := make([]string, len(models.Intents))
	for i, intent := range models.Intents {
		intents[i] = string(intent)
	}

	return fmt.Sprintf(`Você classifica mensagens de clientes recebidas pelo WhatsApp de uma distribuidora industrial.

Responda somente com um objeto JSON com os campos:
- "intent": exatamente um de [%s]
- "confidence": número entre 0 e 1
- "sentiment": "positive", "neutral" ou "negative"
- "urgency": "low", "medium" ou "high"
- "entities": {"products": [], "values": [], "dates": [], "order_numbers": []}
- "summary": resumo curto da mensagem em português

Regras:
1. Pedidos de cotação ou orçamento são QUOTE_REQUEST, mesmo que perguntem o valor.
2. Reclamações sobre defeito, atraso ou atendimento são COMPLAINT.
3. Produtos devem incluir quantidade e código quando presentes, por exemplo "5 rolamentos 6204".
4. Use UNKNOWN apenas quando a mensagem não tiver conteúdo classificável.`, strings.Join(intents, ", "))
}

func userPrompt(text string, opts Options) string {
	var b strings.Builder
	if opts.CustomerName != "" {
		fmt.Fprintf(&b, "Cliente: %s\n", opts.CustomerName)
	}
	if len(opts.ContextMessages) > 0 {
		b.WriteString("Mensagens anteriores:\n")
		for _, m := range opts.ContextMessages {
			fmt.Fprintf(&b, "- %s\n", m)
		}
		b.WriteString("\n")
	}
	b.WriteString("Mensagem a classificar:\n")
	b.WriteString(text)
	return b.String()
}
