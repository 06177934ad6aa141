package etsy

// loginSuccessHTML is served after the callback has been accepted.
const loginSuccessHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Etsy authorization complete</title>
<style>
body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif; background: #f5f1eb; display: flex; align-items: center; justify-content: center; min-height: 100vh; margin: 0; }
.card { background: #fff; border-radius: 12px; padding: 2.5rem; max-width: 420px; text-align: center; box-shadow: 0 8px 24px rgba(0,0,0,.08); }
h1 { color: #f1641e; font-size: 1.4rem; margin: 0 0 .75rem; }
p { color: #444; line-height: 1.5; }
</style>
</head>
<body>
<div class="card">
<h1>Authorization successful</h1>
<p>Your shop is connected. You can close this window and return to the terminal.</p>
</div>
<script>setTimeout(function () { window.close(); }, 5000);</script>
</body>
</html>`

// loginFailureHTML is served when the provider reported an error; %s is the escaped message.
const loginFailureHTML = `<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>Etsy authorization failed</title></head>
<body style="font-family: sans-serif; padding: 2rem;">
<h1>Authorization failed</h1>
<p>%s</p>
<p>Return to the terminal and start the login again.</p>
</body>
</html>`
