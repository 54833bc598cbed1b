package extract

import "google.golang.org/genai"

const matchesPrompt = `
Você é um especialista em analisar screenshots de partidas do jogo Free Fire.
A imagem pode ser: uma tela de fim de partida de um único time (solo) ou de uma dupla, ou ainda uma tabela/leaderboard com vários times.
Extraia as informações de CADA EQUIPE identificada na imagem, onde uma equipe pode ter 1 ou 2 jogadores.
Retorne um array de objetos conforme o schema JSON fornecido.
- "playerNames": Um array com 1 ou 2 nomes, exatamente como aparecem na imagem (não invente nomes ausentes).
- "kills": O número total de abates (kills) do time. Se a imagem mostrar abates por jogador, some para obter o total do time.
- "placement": A posição final do time na partida. Se não estiver claro, use null.
Se a imagem contiver apenas o resultado de um time, retorne um array com um único objeto.
Se for uma tabela de ranking/leaderboard, retorne um array com um objeto para cada time/linha identificada.
Se não conseguir identificar alguma informação para um time, use o valor null para o campo correspondente.
Se não encontrar nenhuma equipe, retorne um array vazio.
`

const textPrompt = `
Você é um especialista em OCR (reconhecimento óptico de caracteres).
Analise esta imagem e extraia TODO o texto visível que você conseguir identificar.

Regras:
- Extraia qualquer texto visível na imagem, incluindo nomes, nicks, palavras, frases.
- Suporte para qualquer idioma (português, inglês, chinês, japonês, coreano, etc).
- Se houver múltiplos textos na imagem, retorne todos eles como itens separados no array.
- Mantenha o texto exatamente como aparece (incluindo caracteres especiais, acentos, ideogramas, etc).
- Ignore elementos que não são texto (ícones, símbolos genéricos, ruído).
- Se não conseguir identificar nenhum texto, retorne um array vazio.

Retorne um array JSON com os textos encontrados.
`

const moneyPrompt = `
Você é um especialista em extrair valores monetários de textos.
Analise o texto fornecido e extraia TODOS os valores monetários que encontrar.

Regras:
- Valores podem estar em formato brasileiro (ex: 6,50) ou internacional (ex: 6.50)
- Identifique valores como 6,50 / 0,50 / 34,50 / R$ 10,00 etc.
- Ignore números que claramente não são valores monetários (CPFs, telefones, códigos)
- Um valor monetário geralmente tem até 2 casas decimais e representa dinheiro
- Se um número aparecer sozinho em uma linha e parecer um valor (ex: 6,50), considere-o como valor monetário

Retorne um array JSON com os valores encontrados como números decimais.
Por exemplo: [6.50, 0.50, 34.50]

Texto para analisar:
`

var matchesSchema = &genai.Schema{
	Type:        genai.TypeArray,
	Description: "Uma lista de todas as equipes (solo ou dupla) encontradas na imagem, com seus resultados.",
	Items: &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"playerNames": {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
			"kills":       {Type: genai.TypeInteger},
			"placement":   {Type: genai.TypeInteger},
		},
		Required: matchKeys,
	},
}

var textSchema = &genai.Schema{
	Type:        genai.TypeArray,
	Description: "Lista de textos encontrados na imagem.",
	Items:       &genai.Schema{Type: genai.TypeString},
}

var moneySchema = &genai.Schema{
	Type:        genai.TypeArray,
	Description: "Lista de valores monetários encontrados no texto.",
	Items:       &genai.Schema{Type: genai.TypeNumber},
}
