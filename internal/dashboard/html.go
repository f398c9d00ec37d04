package dashboard

const dashboardHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>carmatch</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body { font-family: 'Inter', -apple-system, system-ui, sans-serif; background: #0f172a; color: #e2e8f0; min-height: 100vh; }
        .header { background: linear-gradient(135deg, #1e293b, #334155); padding: 1.5rem 2rem; border-bottom: 1px solid #475569; display: flex; justify-content: space-between; align-items: center; }
        .header h1 { font-size: 1.5rem; background: linear-gradient(135deg, #38bdf8, #818cf8); background-clip: text; -webkit-background-clip: text; -webkit-text-fill-color: transparent; }
        .header .status { padding: 0.5rem 1rem; border-radius: 9999px; font-size: 0.875rem; font-weight: 600; }
        .status.running, .status.starting { background: #166534; color: #4ade80; }
        .status.failed { background: #991b1b; color: #fca5a5; }
        .status.stopped, .status.success { background: #854d0e; color: #fde047; }
        .grid { display: grid; grid-template-columns: repeat(auto-fit, minmax(240px, 1fr)); gap: 1rem; padding: 2rem 2rem 0; }
        .card { background: #1e293b; border: 1px solid #334155; border-radius: 12px; padding: 1.5rem; }
        .card .label { font-size: 0.75rem; text-transform: uppercase; letter-spacing: 0.05em; color: #94a3b8; margin-bottom: 0.5rem; }
        .card .value { font-size: 2rem; font-weight: 700; color: #f1f5f9; }
        .card.accent { border-color: #38bdf8; }
        .card.accent .value { color: #38bdf8; }
        table { width: calc(100% - 4rem); margin: 2rem; border-collapse: collapse; background: #1e293b; border-radius: 12px; overflow: hidden; }
        th { text-align: left; font-size: 0.75rem; text-transform: uppercase; letter-spacing: 0.05em; color: #94a3b8; padding: 0.75rem 1rem; border-bottom: 1px solid #334155; }
        td { padding: 0.75rem 1rem; border-bottom: 1px solid #27324a; font-size: 0.875rem; }
        td.num { text-align: right; font-variant-numeric: tabular-nums; }
        .dot { display: inline-block; width: 10px; height: 10px; border-radius: 50%; margin-right: 0.5rem; }
        .dot.green { background: #4ade80; }
        .dot.yellow { background: #fbbf24; }
        .dot.red { background: #f87171; }
        .dot.gray { background: #64748b; }
        .footer { text-align: center; padding: 1rem; color: #475569; font-size: 0.75rem; }
    </style>
</head>
<body>
    <div class="header">
        <h1>carmatch</h1>
        <span class="status stopped" id="status">idle</span>
    </div>
    <div class="grid">
        <div class="card accent"><div class="label">Vehicles Completed</div><div class="value" id="total_completed">0</div></div>
        <div class="card"><div class="label">Vehicles In Run</div><div class="value" id="total_running">0</div></div>
        <div class="card"><div class="label">Cars Priced</div><div class="value" id="cars_count">0</div></div>
        <div class="card"><div class="label">Current Task</div><div class="value" id="current_task" style="font-size:1rem">none</div></div>
    </div>
    <table>
        <thead><tr>
            <th>Position</th><th>Make</th><th>Model</th><th>Version</th>
            <th class="num">Mileage</th><th class="num">Price</th>
            <th class="num">Market Avg</th><th class="num">Delta</th><th class="num">Comparables</th>
        </tr></thead>
        <tbody id="cars"></tbody>
    </table>
    <div class="footer">Auto-refreshes every 5s</div>
    <script>
        const fmt = n => Number(n || 0).toLocaleString('fr-FR');
        async function refresh() {
            try {
                const s = await (await fetch('/api/status')).json();
                const state = (s.run && s.run.status) || 'idle';
                const el = document.getElementById('status');
                el.textContent = state;
                el.className = 'status ' + state;
                document.getElementById('total_completed').textContent = fmt(s.run && s.run.total_completed);
                document.getElementById('total_running').textContent = fmt(s.run && s.run.total_running);
                document.getElementById('current_task').textContent = s.current_task || 'none';

                const c = await (await fetch('/api/cars')).json();
                document.getElementById('cars_count').textContent = fmt(c.count);
                document.getElementById('cars').innerHTML = (c.cars || []).map(v =>
                    '<tr><td><span class="dot ' + v.card_color + '"></span>' + v.card_color + '</td>' +
                    '<td>' + v.make + '</td><td>' + v.model + '</td><td>' + (v.version || '') + '</td>' +
                    '<td class="num">' + fmt(v.mileage) + ' km</td>' +
                    '<td class="num">' + fmt(v.price_with_tax) + ' €</td>' +
                    '<td class="num">' + fmt(v.average_price) + ' €</td>' +
                    '<td class="num">' + fmt(v.price_delta) + ' €</td>' +
                    '<td class="num">' + fmt(v.comparable_count) + '</td></tr>'
                ).join('');
            } catch(e) {}
        }
        setInterval(refresh, 5000);
        refresh();
    </script>
</body>
</html>`
