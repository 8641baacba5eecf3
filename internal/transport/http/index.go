package httpserver

const indexHTML = `<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>metermon</title>
<style>
body { font-family: sans-serif; margin: 2rem; }
dt { font-weight: bold; }
dd { margin: 0 0 1rem 0; font-size: 1.5rem; }
</style>
</head>
<body>
<h1>metermon</h1>
<dl>
<dt>Power (W)</dt><dd id="power">-</dd>
<dt>Energy (Wh)</dt><dd id="energy">-</dd>
<dt>Pulses</dt><dd id="pulses">-</dd>
</dl>
<script>
async function refresh() {
  try {
    const r = await fetch("/api/state");
    const s = await r.json();
    document.getElementById("power").textContent = s.powerW ? s.powerW.value : "-";
    document.getElementById("energy").textContent = s.energyWh ? s.energyWh.value : "-";
    document.getElementById("pulses").textContent = s.pulseCount;
  } catch (e) {}
}
refresh();
setInterval(refresh, 5000);
</script>
</body>
</html>
`
