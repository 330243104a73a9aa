package classifier

import (
	"regexp"

	"leadflow/internal/models"
)

type intentRule struct {
	intent   models.Intent
	patterns []*regexp.Regexp
}

// intentRules is evaluated top to bottom and the first match wins. Handoff and
// complaint come first so an angry quote request still reaches a human;
// QUOTE_REQUEST precedes PRICE_CHECK because quotes usually ask for a value.
var intentRules = []intentRule{
	{models.IntentHumanHandoff, compile(
		`(?i)(falar|conversar) com (um |uma |o |a )?(atendente|humano|pessoa|vendedor|vendedora|gerente|respons[aá]vel)`,
		`(?i)atendimento humano`,
		`(?i)me liga`,
	)},
	{models.IntentComplaint, compile(
		`(?i)absurdo|defeito|reclama`,
		`(?i)p[eé]ssimo|horr[ií]vel|vergonha|descaso|insatisfeit|decepcion`,
		`(?i)quebrad[oa]|estragad[oa]|veio errad[oa]|n[aã]o funciona`,
	)},
	{models.IntentReturnRequest, compile(
		`(?i)devolu[çc][aã]o|devolver|reembolso|estorno`,
		`(?i)\btrocar?\b`,
	)},
	{models.IntentPaymentIssue, compile(
		`(?i)\bboleto\b|\bpix\b|pagamento|cobran[çc]a|\bpaguei\b`,
		`(?i)cart[aã]o (foi )?recusado|segunda via`,
	)},
	{models.IntentOrderStatus, compile(
		`(?i)(status|andamento|situa[çc][aã]o) do (meu )?pedido`,
		`(?i)meu pedido|\bpedido\s*(n[º°o]?\.?\s*)?\d{3,}`,
	)},
	{models.IntentDeliveryInquiry, compile(
		`(?i)entrega|\bfrete\b|rastreio|rastreamento|transportadora`,
		`(?i)prazo de (envio|chegada)|quando chega`,
	)},
	{models.IntentQuoteRequest, compile(
		`(?i)cota[çc][aã]o|or[çc]amento|preciso de|\bcotar\b`,
	)},
	{models.IntentPurchaseIntent, compile(
		`(?i)quero (comprar|fechar|levar|pedir)|vou (comprar|levar|querer)`,
		`(?i)pode (fechar|mandar|enviar|separar)|fechar (o )?pedido|\bcomprar\b`,
	)},
	{models.IntentPriceCheck, compile(
		`(?i)pre[çc]o|quanto (custa|fica|sai|[eé])|\bvalor\b`,
	)},
	{models.IntentStockCheck, compile(
		`(?i)estoque|dispon[ií]ve(l|is)|disponibilidade|pronta entrega|ainda tem`,
	)},
	{models.IntentProductInfo, compile(
		`(?i)especifica[çc]|ficha t[eé]cnica|\bmedidas?\b|dimens[oõ]es|compat[ií]vel`,
		`(?i)\bserve (para|pra)\b|informa[çc][oõ]es sobre|\bmodelo\b`,
	)},
	{models.IntentThanks, compile(
		`(?i)obrigad[oa]|\bvaleu\b|agrade[çc]o|\bgrat[oa]\b`,
	)},
	{models.IntentGreeting, compile(
		`(?i)^\s*(ol[aá]|oi|bom dia|boa tarde|boa noite|e a[ií])([\s,!.?]|$)`,
	)},
}

var (
	positiveKeywords = []string{
		"obrigad", "ótimo", "otimo", "excelente", "perfeito", "adorei", "gostei",
		"maravilh", "parabéns", "parabens", "satisfeit", "show de bola", "muito bom",
	}
	negativeKeywords = []string{
		"absurdo", "defeito", "péssimo", "pessimo", "horrível", "horrivel", "ruim",
		"reclama", "problema", "atrasad", "quebrad", "não funciona", "nao funciona",
		"insatisfeit", "vergonha", "raiva", "decepcion", "demora", "errad", "descaso",
	}
	urgencyKeywords = []string{
		"urgente", "urgência", "urgencia", "emergência", "emergencia", "imediato",
		"imediatamente", "o quanto antes", "o mais rápido", "o mais rapido", "linha parada",
		"máquina parada", "maquina parada", "asap",
	}
)

var (
	orderNumberPattern  = regexp.MustCompile(`(?i)\b(?:pedido|nf-?e?|nota(?:\s+fiscal)?|ordem)\s*(?:n[º°o]?\.?\s*|#\s*|:\s*)?(\d{3,})`)
	valuePattern        = regexp.MustCompile(`R\$\s?\d{1,3}(?:\.\d{3})*(?:,\d{2})?|R\$\s?\d+(?:,\d{2})?`)
	numericDatePattern  = regexp.MustCompile(`\b\d{1,2}/\d{1,2}(?:/\d{2,4})?\b`)
	relativeDatePattern = regexp.MustCompile(`(?i)\bhoje\b|amanh[ãa]`)
	quantityPattern     = regexp.MustCompile(`(?i)(?:^|[^\p{L}\d])(\d{1,5})\s*(?:x\s+)?(?:(?:unidades?|unid\.?|un\.?|pe[çc]as?|p[çc]s?|caixas?|cx|kits?|pacotes?|rolos?|metros?)\s+(?:d[eoa]s?\s+)?)?(\p{L}{3,})(?:\s+([A-Za-z]{0,4}\d[\w\-./]*))?`)
	knownProductPattern = regexp.MustCompile(`(?i)(?:^|[^\p{L}])(rolamentos?|correias?|parafusos?|retentor(?:es)?|mancal|mancais|polias?|engrenagens?|mangueiras?|v[aá]lvulas?|filtros?|motor(?:es)?|bombas?|rodas?|buchas?|anel|an[eé]is|juntas?)(?:\s+([A-Za-z]{0,4}\d[\w\-./]*))?(?:[^\p{L}]|$)`)
)

// productStopwords are words that follow a number but never name a product.
var productStopwords = map[string]bool{
	"dia": true, "dias": true, "hora": true, "horas": true, "minuto": true, "minutos": true,
	"semana": true, "semanas": true, "mês": true, "meses": true, "ano": true, "anos": true,
	"vez": true, "vezes": true, "reais": true, "real": true, "centavos": true, "por": true,
	"para": true, "pra": true, "que": true, "com": true, "sem": true, "mil": true,
	"dos": true, "das": true, "porcento": true, "unidades": true, "peças": true, "pecas": true,
}

func compile(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}
