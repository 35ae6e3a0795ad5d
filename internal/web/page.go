package web

import "html/template"

type pageData struct {
	Question string
	Answer   string
	Answered bool
	Error    string
	Summary  string
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="pt-BR">
<head>
    <meta charset="utf-8">
    <title>Marvel Chat</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; font-family: Arial, sans-serif; }
        body { background: #f1f1f1; color: #333; padding: 20px; }
        .container { max-width: 600px; margin: 0 auto; background: #fff; border-radius: 8px; padding: 20px; box-shadow: 0 3px 8px rgba(0,0,0,0.2); }
        h1 { text-align: center; color: #ED1D24; margin-bottom: 20px; }
        form { display: flex; flex-direction: column; gap: 10px; margin-bottom: 20px; }
        label { font-weight: bold; }
        input[type="text"] { padding: 10px; border: 1px solid #ccc; border-radius: 4px; font-size: 1rem; }
        button { background-color: #ED1D24; color: #fff; border: none; padding: 12px; border-radius: 4px; font-size: 1rem; cursor: pointer; }
        button:hover { background-color: #c70000; }
        hr { margin: 20px 0; }
        .question, .response, .error { background: #fafafa; border-left: 4px solid #ED1D24; padding: 10px; margin-bottom: 10px; border-radius: 4px; }
        .question strong { color: #ED1D24; }
        .response { border-left-color: #0066cc; }
        .response p { font-style: italic; }
        .error { border-left-color: #999; color: #a00; }
        .summary, .footer { text-align: center; font-size: 0.9rem; color: #666; }
        .footer { margin-top: 30px; }
    </style>
</head>
<body>
    <div class="container">
        <h1>Marvel Chat</h1>
        {{if .Summary}}<p class="summary">{{.Summary}}</p><hr>{{end}}

        <form method="POST" action="/">
            <label for="question">Pergunta:</label>
            <input type="text" id="question" name="question" placeholder="Digite sua pergunta..." required>
            <button type="submit">Enviar</button>
        </form>

        {{if .Question}}
            <div class="question">
                <strong>Sua pergunta:</strong>
                <p>{{.Question}}</p>
            </div>
        {{end}}
        {{if .Error}}
            <div class="error">
                <strong>Erro:</strong>
                <p>{{.Error}}</p>
            </div>
        {{else if .Answered}}
            <div class="response">
                <strong>Resposta:</strong>
                <p>{{.Answer}}</p>
            </div>
        {{end}}

        <hr>
        <div class="footer">
            <p>Marvel Chat</p>
        </div>
    </div>
</body>
</html>
`))
