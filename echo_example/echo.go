/*
Use either as

	$ echo -srv

or

	$ echo -cl [-async] [-parallel 4]
*/
package main

import (
	"flag"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/dermesser/simplerpc/client"
	"github.com/dermesser/simplerpc/codec"
	"github.com/dermesser/simplerpc/eventloop"
	"github.com/dermesser/simplerpc/log"
	"github.com/dermesser/simplerpc/server"

	zmq "github.com/pebbe/zmq4"
	"golang.org/x/sync/errgroup"
)

func echoHandler(cx *server.Context) (interface{}, error) {
	var s string
	if err := cx.Arg(0, &s); err != nil {
		return nil, err
	}
	fmt.Println("Called echoHandler:", s, len(s))
	return s, nil
}

func errorReturningHandler(cx *server.Context) (interface{}, error) {
	return nil, server.NewError("ValueError", "Some error occurred in handler, abort")
}

func runServer(ctx *zmq.Context, url string, c codec.Codec) error {
	loop := eventloop.New(0)

	srv, err := server.NewService(loop, ctx)
	if err != nil {
		return err
	}
	defer srv.Close()

	srv.SetCodec(c)
	srv.RegisterHandler("EchoService.Echo", echoHandler)
	srv.RegisterHandler("EchoService.Error", errorReturningHandler)

	if err = srv.Bind(url); err != nil {
		return err
	}
	return loop.Run()
}

func runClient(ctx *zmq.Context, url string, c codec.Codec) error {
	p, err := client.Dial(ctx, url)
	if err != nil {
		return err
	}
	defer p.Close()

	p.SetCodec(c)
	p.SetTimeout(5 * time.Second)

	var resp string
	if err = p.Call(&resp, "EchoService.Echo", "helloworld"); err != nil {
		return err
	}
	fmt.Println("Received response:", resp, len(resp))

	err = p.Method("EchoService.Error").Call(&resp, "helloworld")
	if rerr, ok := err.(*client.RemoteError); ok {
		fmt.Println("Received remote error:", rerr.Kind, rerr.Message)
		return nil
	}
	return err
}

func runAsyncClient(ctx *zmq.Context, url string, c codec.Codec, n int) error {
	loop := eventloop.New(0)
	if err := loop.Start(); err != nil {
		return err
	}
	defer loop.Stop()

	p, err := client.NewAsyncProxy(loop, ctx, 0)
	if err != nil {
		return err
	}
	defer p.Close()

	p.SetCodec(c)
	if err = p.Connect(url); err != nil {
		return err
	}

	var wg sync.WaitGroup
	echo := p.Method("EchoService.Echo")

	for i := 0; i < n; i++ {
		wg.Add(1)
		_, err = echo.Call(func(rsp *client.Response) {
			defer wg.Done()
			var s string
			if err := rsp.Decode(&s); err != nil {
				fmt.Println("Call failed:", err.Error())
				return
			}
			fmt.Println("Received response:", s)
		}, fmt.Sprintf("hello #%d", i))

		if err != nil {
			wg.Done()
			return err
		}
	}

	wg.Wait()
	return nil
}

// n goroutines call concurrently, each with a proxy of its own from the cache.
func runParallelClient(ctx *zmq.Context, url string, c codec.Codec, n int) error {
	pc := client.NewProxyCache(ctx)
	pc.SetCodec(c)
	pc.SetTimeout(5 * time.Second)
	defer pc.CloseAll()

	var g errgroup.Group
	start := time.Now()

	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			p, err := pc.Connect(url)
			if err != nil {
				return err
			}
			defer pc.Return(&p)

			for j := 0; j < 100; j++ {
				var s string
				if err := p.Call(&s, "EchoService.Echo", fmt.Sprintf("%d/%d", i, j)); err != nil {
					return err
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	fmt.Println(n*100, "calls took", time.Since(start))
	return nil
}

func main() {
	var srv, cl, async bool
	var url, codecName string
	var loglevel, parallel int

	flag.BoolVar(&srv, "srv", false, "Specify if you want us to run as server")
	flag.BoolVar(&cl, "cl", false, "Specify if you want us to run as client")
	flag.BoolVar(&async, "async", false, "Use an asynchronous proxy (with -cl)")
	flag.IntVar(&parallel, "parallel", 0, "Number of parallel synchronous callers (with -cl)")
	flag.StringVar(&url, "url", "tcp://127.0.0.1:9000", "URL to bind to or connect to")
	flag.StringVar(&codecName, "codec", "msgpack", "Codec: msgpack or json")
	flag.IntVar(&loglevel, "loglevel", log.LOGLEVEL_WARNINGS, "Log level (0-4)")

	flag.Parse()

	if (srv && cl) || (!srv && !cl) {
		fmt.Println("Wrong combination: Use either -srv or -cl")
		return
	}

	log.SetLoglevel(loglevel)

	c, err := codec.ByName(codecName)
	if err != nil {
		fmt.Println(err.Error())
		os.Exit(1)
	}

	ctx, err := zmq.NewContext()
	if err != nil {
		fmt.Println(err.Error())
		os.Exit(1)
	}
	defer ctx.Term()

	if srv {
		err = runServer(ctx, url, c)
	} else if async {
		err = runAsyncClient(ctx, url, c, 10)
	} else if parallel > 0 {
		err = runParallelClient(ctx, url, c, parallel)
	} else {
		err = runClient(ctx, url, c)
	}

	if err != nil {
		fmt.Println(err.Error())
	}
}
