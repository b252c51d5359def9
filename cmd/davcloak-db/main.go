package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	badger "github.com/dgraph-io/badger/v3"
)

// namespaces written by davcloak
var namespaces = []string{"hist:ip", "rl:ip", "stats"}

func main() {
	dbdir := flag.String("dir", "./badger", "the davcloak history directory")
	namespace := flag.String("ns", "hist:ip", fmt.Sprintf("dump the entries of this namespace %v", namespaces))
	prefix := flag.String("prefix", "", "only dump keys with this prefix")
	values := flag.Bool("values", false, "print the values along with the keys")

	flag.Parse()

	opts := badger.DefaultOptions(*dbdir)
	opts.ReadOnly = true
	opts.Logger = nil
	opts.Dir, opts.ValueDir = *dbdir, *dbdir

	db, err := badger.Open(opts)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	keyPrefix := []byte(fmt.Sprintf("%s/%s", *namespace, *prefix))

	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(keyPrefix); it.ValidForPrefix(keyPrefix); it.Next() {
			item := it.Item()
			key := bytes.TrimPrefix(item.Key(), []byte(*namespace+"/"))

			if !*values {
				fmt.Println(string(key))
				continue
			}

			err := item.Value(func(v []byte) error {
				var out bytes.Buffer
				if json.Indent(&out, v, "", "  ") != nil {
					out.Reset()
					out.Write(v)
				}
				fmt.Printf("%s\t%s\n", key, out.String())
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Println(err)
		os.Exit(1)
	}
}
