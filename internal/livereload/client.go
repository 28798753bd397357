package livereload

// clientScript connects a page to the server and applies pushed messages.
const clientScript = `(function () {
  if (!("WebSocket" in window)) return;
  var proto = location.protocol === "https:" ? "wss://" : "ws://";
  var url = proto + location.host + "` + SocketPath + `";

  function swapStylesheets(path) {
    var links = document.querySelectorAll('link[rel="stylesheet"]');
    var matched = false;
    for (var i = 0; i < links.length; i++) {
      var href = new URL(links[i].href, location.href);
      if (href.host !== location.host || href.pathname !== path) continue;
      href.searchParams.set("sitepipe", Date.now());
      links[i].href = href.toString();
      matched = true;
    }
    if (!matched) location.reload();
  }

  function connect(delay) {
    var ws = new WebSocket(url);
    ws.onmessage = function (ev) {
      var msg = JSON.parse(ev.data);
      if (msg.type === "reload") location.reload();
      else if (msg.type === "css") swapStylesheets(msg.path);
    };
    ws.onclose = function () {
      setTimeout(function () { connect(Math.min(delay * 2, 5000)); }, delay);
    };
  }
  connect(500);
})();
`
